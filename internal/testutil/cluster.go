package testutil

import (
	"sync"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"storefleet.dev/storefleet/internal/provider"
)

var (
	deploymentsGVR = appsv1.SchemeGroupVersion.WithResource("deployments")
	jobsGVR        = batchv1.SchemeGroupVersion.WithResource("jobs")
)

// FakeCluster is a fake clientset whose controllers behave just enough for
// the pipelines: deployments report every replica ready and jobs succeed,
// unless a test says otherwise.
type FakeCluster struct {
	Clientset *fake.Clientset

	mu          sync.Mutex
	held        map[string]bool
	jobFailures int32
}

// NewFakeCluster seeds a fake clientset with objects.
func NewFakeCluster(objects ...runtime.Object) *FakeCluster {
	c := &FakeCluster{
		Clientset: fake.NewClientset(objects...),
		held:      make(map[string]bool),
	}
	c.Clientset.PrependReactor("get", "deployments", c.getDeployment)
	c.Clientset.PrependReactor("get", "jobs", c.getJob)
	return c
}

// Gateway returns a KubeGateway over the fake clientset.
func (c *FakeCluster) Gateway() *provider.KubeGateway {
	return provider.NewKubeGateway(c.Clientset, 5*time.Second)
}

// HoldDeployment keeps the named deployment at zero ready replicas.
func (c *FakeCluster) HoldDeployment(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held[name] = true
}

// FailJobs makes every job report n failed pods and no successes.
func (c *FakeCluster) FailJobs(n int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobFailures = n
}

// CountActions counts recorded API calls matching verb and resource.
func (c *FakeCluster) CountActions(verb, resource string) int {
	n := 0
	for _, a := range c.Clientset.Actions() {
		if a.GetVerb() == verb && a.GetResource().Resource == resource {
			n++
		}
	}
	return n
}

func (c *FakeCluster) getDeployment(action k8stesting.Action) (bool, runtime.Object, error) {
	get := action.(k8stesting.GetAction)
	obj, err := c.Clientset.Tracker().Get(deploymentsGVR, get.GetNamespace(), get.GetName())
	if err != nil {
		return true, nil, err
	}
	d := obj.(*appsv1.Deployment).DeepCopy()

	c.mu.Lock()
	held := c.held[d.Name]
	c.mu.Unlock()
	if !held {
		replicas := int32(1)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		d.Status.Replicas = replicas
		d.Status.ReadyReplicas = replicas
	}
	return true, d, nil
}

func (c *FakeCluster) getJob(action k8stesting.Action) (bool, runtime.Object, error) {
	get := action.(k8stesting.GetAction)
	obj, err := c.Clientset.Tracker().Get(jobsGVR, get.GetNamespace(), get.GetName())
	if err != nil {
		return true, nil, err
	}
	job := obj.(*batchv1.Job).DeepCopy()

	c.mu.Lock()
	failures := c.jobFailures
	c.mu.Unlock()
	if failures > 0 {
		job.Status.Failed = failures
	} else {
		job.Status.Succeeded = 1
	}
	return true, job, nil
}
