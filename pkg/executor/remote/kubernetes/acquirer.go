// Package kubernetes provides a SandboxAcquirer that gives every session a
// dedicated interpreter pod through agent-sandbox SandboxClaim resources.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/executor/remote"
)

var _ remote.SandboxAcquirer = (*ClaimAcquirer)(nil)

const (
	defaultPort         = 8080
	defaultPollInterval = 500 * time.Millisecond

	managedByLabel = "app.kubernetes.io/managed-by"
	managedByValue = "datasci"
)

// Options configures a ClaimAcquirer.
type Options struct {
	// Template names the SandboxTemplate that runs the interpreter service.
	Template string
	// Namespace holds the claims.
	Namespace string
	// Timeout bounds the wait for a claimed sandbox to become ready.
	Timeout time.Duration
	// Port is the interpreter service port inside the sandbox.
	Port int
	// PollInterval is how often readiness is checked.
	PollInterval time.Duration
}

// ClaimAcquirer creates one SandboxClaim per acquisition, waits for the
// bound Sandbox to report Ready and returns its service URL. Releasing
// deletes the claim, which lets the controller reclaim the pod.
type ClaimAcquirer struct {
	client  client.Client
	opts    Options
	newName func() string
}

// NewClaimAcquirer creates a ClaimAcquirer.
func NewClaimAcquirer(c client.Client, opts Options) *ClaimAcquirer {
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &ClaimAcquirer{client: c, opts: opts, newName: claimName}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Acquire implements remote.SandboxAcquirer.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	name := a.newName()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.opts.Namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{
				Name: a.opts.Template,
			},
		},
	}
	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", name, err)
	}
	debug.Log("sandbox", "created SandboxClaim", "name", name, "namespace", a.opts.Namespace, "template", a.opts.Template)

	fqdn, err := a.waitForReady(ctx, name)
	if err != nil {
		a.deleteClaim(context.Background(), name)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, a.opts.Port)
	debug.Log("sandbox", "sandbox acquired", "name", name, "url", url)
	var once sync.Once
	release := func() {
		once.Do(func() { a.deleteClaim(context.Background(), name) })
	}
	return url, release, nil
}

// waitForReady polls the Sandbox named after the claim until it is Ready
// and has a service FQDN.
func (a *ClaimAcquirer) waitForReady(ctx context.Context, name string) (string, error) {
	deadline := time.NewTimer(a.opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	key := types.NamespacedName{Name: name, Namespace: a.opts.Namespace}
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context cancelled waiting for Sandbox %q: %w", name, ctx.Err())
		case <-deadline.C:
			return "", fmt.Errorf("timeout waiting for Sandbox %q to become ready (waited %s)", name, a.opts.Timeout)
		case <-ticker.C:
			sandbox := &sandboxv1alpha1.Sandbox{}
			if err := a.client.Get(ctx, key, sandbox); err != nil {
				// The controller may not have created it yet.
				continue
			}
			if isReady(sandbox) && sandbox.Status.ServiceFQDN != "" {
				return sandbox.Status.ServiceFQDN, nil
			}
		}
	}
}

func isReady(sandbox *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sandbox.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim is best effort; failures are logged.
func (a *ClaimAcquirer) deleteClaim(ctx context.Context, name string) {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: a.opts.Namespace},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", a.opts.Namespace, "error", err.Error())
		return
	}
	debug.Log("sandbox", "deleted SandboxClaim", "name", name)
}

func claimName() string {
	return "datasci-" + uuid.NewString()[:13]
}
