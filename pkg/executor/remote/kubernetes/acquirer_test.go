package kubernetes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"
)

// newTestAcquirer returns an acquirer over a fake cluster whose claims are
// named claim-1, claim-2, ...
func newTestAcquirer(t *testing.T, opts Options) (*ClaimAcquirer, client.Client) {
	t.Helper()
	scheme, err := NewScheme()
	if err != nil {
		t.Fatalf("NewScheme: %v", err)
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithStatusSubresource(&sandboxv1alpha1.Sandbox{}).Build()

	a := NewClaimAcquirer(c, opts)
	var mu sync.Mutex
	n := 0
	a.newName = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("claim-%d", n)
	}
	return a, c
}

// markReady plays the agent-sandbox controller: it creates the Sandbox
// bound to a claim and reports it Ready.
func markReady(t *testing.T, c client.Client, name, namespace, fqdn string) {
	t.Helper()
	ctx := context.Background()
	sb := &sandboxv1alpha1.Sandbox{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace}}
	if err := c.Create(ctx, sb); err != nil {
		t.Errorf("create sandbox %s: %v", name, err)
		return
	}
	sb.Status.ServiceFQDN = fqdn
	sb.Status.Conditions = []metav1.Condition{{
		Type:               string(sandboxv1alpha1.SandboxConditionReady),
		Status:             metav1.ConditionTrue,
		LastTransitionTime: metav1.Now(),
		Reason:             "Ready",
	}}
	if err := c.Status().Update(ctx, sb); err != nil {
		t.Errorf("update sandbox status %s: %v", name, err)
	}
}

func claimExists(t *testing.T, c client.Client, name, namespace string) (*extensionsv1alpha1.SandboxClaim, bool) {
	t.Helper()
	claim := &extensionsv1alpha1.SandboxClaim{}
	err := c.Get(context.Background(), client.ObjectKey{Name: name, Namespace: namespace}, claim)
	return claim, err == nil
}

func TestAcquireAndRelease(t *testing.T) {
	a, c := newTestAcquirer(t, Options{Template: "go-interpreter", Namespace: "agents", Timeout: 5 * time.Second, PollInterval: 20 * time.Millisecond})

	go func() {
		time.Sleep(100 * time.Millisecond)
		markReady(t, c, "claim-1", "agents", "sb-1.agents.svc.cluster.local")
	}()

	url, release, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if url != "http://sb-1.agents.svc.cluster.local:8080" {
		t.Errorf("url = %q", url)
	}

	claim, ok := claimExists(t, c, "claim-1", "agents")
	if !ok {
		t.Fatal("SandboxClaim not created")
	}
	if claim.Spec.TemplateRef.Name != "go-interpreter" {
		t.Errorf("template = %q, want go-interpreter", claim.Spec.TemplateRef.Name)
	}
	if claim.Labels[managedByLabel] != managedByValue {
		t.Errorf("labels = %v", claim.Labels)
	}

	release()
	release()
	if _, ok := claimExists(t, c, "claim-1", "agents"); ok {
		t.Error("SandboxClaim still exists after release")
	}
}

func TestAcquireUsesConfiguredPort(t *testing.T) {
	a, c := newTestAcquirer(t, Options{Template: "go-interpreter", Namespace: "agents", Port: 9090, PollInterval: 10 * time.Millisecond})
	markReady(t, c, "claim-1", "agents", "sb.agents.svc.cluster.local")

	url, release, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()
	if url != "http://sb.agents.svc.cluster.local:9090" {
		t.Errorf("url = %q, want port 9090", url)
	}
}

func TestAcquireFailureDeletesClaim(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		cancel  time.Duration
		want    string
	}{
		{name: "sandbox never ready", timeout: 300 * time.Millisecond, want: "timeout waiting"},
		{name: "caller gives up", timeout: 30 * time.Second, cancel: 100 * time.Millisecond, want: "context cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, c := newTestAcquirer(t, Options{Template: "go-interpreter", Namespace: "default", Timeout: tt.timeout, PollInterval: 20 * time.Millisecond})

			ctx := context.Background()
			if tt.cancel > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.cancel)
				defer cancel()
			}

			_, _, err := a.Acquire(ctx)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Acquire error = %v, want %q", err, tt.want)
			}
			if _, ok := claimExists(t, c, "claim-1", "default"); ok {
				t.Error("SandboxClaim left behind after failed acquisition")
			}
		})
	}
}

func TestConcurrentAcquisitionsGetOwnSandboxes(t *testing.T) {
	a, c := newTestAcquirer(t, Options{Template: "go-interpreter", Namespace: "default", Timeout: 5 * time.Second, PollInterval: 20 * time.Millisecond})

	const n = 3
	go func() {
		time.Sleep(100 * time.Millisecond)
		for i := 1; i <= n; i++ {
			markReady(t, c, fmt.Sprintf("claim-%d", i), "default", fmt.Sprintf("sb-%d.default.svc", i))
		}
	}()

	var wg sync.WaitGroup
	urls := make([]string, n)
	errs := make([]error, n)
	releases := make([]func(), n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			urls[i], releases[i], errs[i] = a.Acquire(context.Background())
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range n {
		if errs[i] != nil {
			t.Errorf("acquisition %d: %v", i, errs[i])
			continue
		}
		if seen[urls[i]] {
			t.Errorf("url %q handed out twice", urls[i])
		}
		seen[urls[i]] = true
		releases[i]()
	}
}

func TestNewClaimAcquirerDefaults(t *testing.T) {
	a := NewClaimAcquirer(nil, Options{Template: "t"})
	if a.opts.Port != defaultPort || a.opts.PollInterval != defaultPollInterval || a.opts.Timeout != 60*time.Second {
		t.Errorf("defaults not applied: %+v", a.opts)
	}
	if name := claimName(); !strings.HasPrefix(name, "datasci-") || len(name) > 63 {
		t.Errorf("claimName() = %q", name)
	}
}

func TestIsReady(t *testing.T) {
	ready := string(sandboxv1alpha1.SandboxConditionReady)
	tests := []struct {
		name       string
		conditions []metav1.Condition
		want       bool
	}{
		{"no conditions", nil, false},
		{"ready", []metav1.Condition{{Type: ready, Status: metav1.ConditionTrue}}, true},
		{"not ready", []metav1.Condition{{Type: ready, Status: metav1.ConditionFalse}}, false},
		{"unrelated condition", []metav1.Condition{{Type: "Available", Status: metav1.ConditionTrue}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := &sandboxv1alpha1.Sandbox{Status: sandboxv1alpha1.SandboxStatus{Conditions: tt.conditions}}
			if got := isReady(sb); got != tt.want {
				t.Errorf("isReady() = %v, want %v", got, tt.want)
			}
		})
	}
}
