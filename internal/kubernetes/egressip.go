package k8s

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/ovnwatch/ovnwatch/internal/types"
)

// EgressIP is a cluster-scoped CRD owned by ovn-kubernetes, so it is
// read through the dynamic client.
var egressIPResource = schema.GroupVersionResource{
	Group:    "k8s.ovn.org",
	Version:  "v1",
	Resource: "egressips",
}

// Nodes carrying this label are eligible to host egress IP assignments.
const egressAssignableLabel = "k8s.ovn.org/egress-assignable"

// ListAssignments reads every EgressIP object and flattens it into the
// desired assignment state the validator consumes.
func (c *Client) ListAssignments(ctx context.Context) (types.AssignmentContext, error) {
	list, err := c.dynamic.Resource(egressIPResource).List(ctx, metav1.ListOptions{})
	if err != nil {
		return types.AssignmentContext{}, fmt.Errorf("failed to list egressips: %w", err)
	}

	assignedSet := map[string]struct{}{}
	objects := make([]types.DesiredAssignment, 0, len(list.Items))
	for i := range list.Items {
		obj := AssignmentFromObject(&list.Items[i])
		obj.PodCount = c.podCount(ctx, &list.Items[i])
		for _, ip := range obj.AssignedIPs {
			assignedSet[ip] = struct{}{}
		}
		objects = append(objects, obj)
	}

	all := make([]string, 0, len(assignedSet))
	for ip := range assignedSet {
		all = append(all, ip)
	}
	sort.Strings(all)

	return types.AssignmentContext{AllAssignedIPs: all, Objects: objects}, nil
}

// AssignmentFromObject flattens one unstructured EgressIP. Missing or
// malformed fields degrade to empty values rather than errors; the
// object's presence is still signal even when its status is not.
func AssignmentFromObject(obj *unstructured.Unstructured) types.DesiredAssignment {
	out := types.DesiredAssignment{Name: obj.GetName()}

	if ns, ok, _ := unstructured.NestedString(obj.Object, "metadata", "namespace"); ok {
		out.Namespace = ns
	}
	if ips, ok, _ := unstructured.NestedStringSlice(obj.Object, "spec", "egressIPs"); ok {
		out.SpecIPs = ips
	}

	items, _, _ := unstructured.NestedSlice(obj.Object, "status", "items")
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if ip, ok := item["egressIP"].(string); ok && ip != "" {
			out.AssignedIPs = append(out.AssignedIPs, ip)
		}
		if node, ok := item["node"].(string); ok && node != "" {
			out.AssignedNodes = append(out.AssignedNodes, node)
		}
	}

	switch {
	case len(out.SpecIPs) > 0 && len(out.AssignedIPs) >= len(out.SpecIPs):
		out.Status = "ready"
	case len(out.AssignedIPs) > 0:
		out.Status = "partial"
	default:
		out.Status = "pending"
	}

	return out
}

// podCount counts pods in the namespaces the EgressIP object selects.
// Failures here are logged and reported as zero; the count feeds
// trend metrics, not validation.
func (c *Client) podCount(ctx context.Context, obj *unstructured.Unstructured) int {
	raw, ok, err := unstructured.NestedMap(obj.Object, "spec", "namespaceSelector")
	if err != nil || !ok {
		return 0
	}

	var selector metav1.LabelSelector
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(raw, &selector); err != nil {
		c.log.WithError(err).WithField("egressip", obj.GetName()).Warn("bad namespace selector")
		return 0
	}
	labelSelector, err := metav1.LabelSelectorAsSelector(&selector)
	if err != nil {
		c.log.WithError(err).WithField("egressip", obj.GetName()).Warn("bad namespace selector")
		return 0
	}

	namespaces, err := c.typed.CoreV1().Namespaces().List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector.String(),
	})
	if err != nil {
		c.log.WithError(err).Warn("failed to list namespaces for pod count")
		return 0
	}

	count := 0
	for _, ns := range namespaces.Items {
		pods, err := c.typed.CoreV1().Pods(ns.Name).List(ctx, metav1.ListOptions{})
		if err != nil {
			c.log.WithError(err).WithField("namespace", ns.Name).Warn("failed to list pods")
			continue
		}
		count += len(pods.Items)
	}
	return count
}

// ClusterInfo summarizes the egress surface of the cluster.
type ClusterInfo struct {
	TotalNodes           int `json:"total_nodes"`
	ReadyNodes           int `json:"ready_nodes"`
	EgressAssignableNodes int `json:"egress_assignable_nodes"`
	EgressIPObjects      int `json:"egressip_objects"`
}

func nodeReady(node corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// ClusterInfo reports node counts and how many EgressIP objects exist.
func (c *Client) ClusterInfo(ctx context.Context) (ClusterInfo, error) {
	var info ClusterInfo

	nodes, err := c.typed.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return info, fmt.Errorf("failed to list nodes: %w", err)
	}
	info.TotalNodes = len(nodes.Items)
	for _, n := range nodes.Items {
		if nodeReady(n) {
			info.ReadyNodes++
		}
	}

	assignable, err := c.typed.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: egressAssignableLabel + "=true",
	})
	if err != nil {
		return info, fmt.Errorf("failed to list assignable nodes: %w", err)
	}
	info.EgressAssignableNodes = len(assignable.Items)

	eips, err := c.dynamic.Resource(egressIPResource).List(ctx, metav1.ListOptions{})
	if err != nil {
		return info, fmt.Errorf("failed to list egressips: %w", err)
	}
	info.EgressIPObjects = len(eips.Items)

	return info, nil
}

// AssignableNodeNames returns the names of egress-assignable nodes,
// sorted, for use as a multi-node comparison target list.
func (c *Client) AssignableNodeNames(ctx context.Context) ([]string, error) {
	nodes, err := c.typed.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: egressAssignableLabel + "=true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignable nodes: %w", err)
	}

	names := make([]string, 0, len(nodes.Items))
	for _, n := range nodes.Items {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	return names, nil
}
