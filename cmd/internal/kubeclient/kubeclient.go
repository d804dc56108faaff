// Package kubeclient builds the dynamic.Interface the example binaries
// hand to public/runtime.New. Kubernetes cluster-credential loading is
// an out-of-scope external collaborator (spec.md §1): this package is
// the thin, CLI-only edge that satisfies it, never imported by
// internal/registry or public/runtime themselves.
package kubeclient

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Build resolves a REST config the same way kubectl does (in-cluster
// first, then KUBECONFIG / ~/.kube/config) and wraps it as a dynamic client.
func Build() (dynamic.Interface, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			home, herr := os.UserHomeDir()
			if herr != nil {
				return nil, fmt.Errorf("kubeclient: no in-cluster config and no home directory: %w", err)
			}
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("kubeclient: build config from %s: %w", kubeconfig, err)
		}
	}

	client, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("kubeclient: build dynamic client: %w", err)
	}
	return client, nil
}
