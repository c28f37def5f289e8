package blob

import (
	"fmt"
	"sync"

	"github.com/bitrise-io/go-utils/v2/analytics"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

type trackedEvent struct {
	name       string
	properties analytics.Properties
}

type fakeTracker struct {
	mu     sync.Mutex
	events []trackedEvent
	waited bool
}

func (t *fakeTracker) Enqueue(name string, properties ...analytics.Properties) {
	t.mu.Lock()
	defer t.mu.Unlock()
	event := trackedEvent{name: name}
	if len(properties) > 0 {
		event.properties = properties[0]
	}
	t.events = append(t.events, event)
}

func (t *fakeTracker) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waited = true
}

func (t *fakeTracker) eventNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.events))
	for _, event := range t.events {
		names = append(names, event.name)
	}
	return names
}
