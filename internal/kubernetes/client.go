package k8s

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/u2takey/go-utils/filesystem/homedir"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client bundles the typed and dynamic Kubernetes clients the analyzer
// needs. The dynamic client exists only because EgressIP is a CRD with
// no generated clientset.
type Client struct {
	typed   kubernetes.Interface
	dynamic dynamic.Interface
	log     *logrus.Logger
}

// LoadConfig prefers in-cluster credentials and falls back to a
// kubeconfig file. An empty path means ~/.kube/config.
func LoadConfig(kubeconfig string) (*rest.Config, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, nil
	}

	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	return config, nil
}

// NewClient builds a Client from a rest config. A nil logger selects
// the logrus standard logger.
func NewClient(config *rest.Config, log *logrus.Logger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	typed, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Client{typed: typed, dynamic: dyn, log: log}, nil
}
