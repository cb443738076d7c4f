package platform

import (
	"errors"
	"testing"
)

type recordingPlugin struct {
	events    []string
	attachErr error
	lifecycle LifecycleOwner
}

func (p *recordingPlugin) OnAttachedToEngine(*EngineBinding) error {
	p.events = append(p.events, "attach")
	return p.attachErr
}

func (p *recordingPlugin) OnDetachedFromEngine(*EngineBinding) {
	p.events = append(p.events, "detach")
}

func (p *recordingPlugin) OnAttachedToActivity(b *ActivityBinding) {
	p.events = append(p.events, "activity")
	p.lifecycle = b.Lifecycle
}

func (p *recordingPlugin) OnDetachedFromActivityForConfigChanges() {
	p.events = append(p.events, "activity-config-detach")
}

func (p *recordingPlugin) OnReattachedToActivityForConfigChanges(b *ActivityBinding) {
	p.events = append(p.events, "activity-reattach")
	p.lifecycle = b.Lifecycle
}

func (p *recordingPlugin) OnDetachedFromActivity() {
	p.events = append(p.events, "activity-detach")
	p.lifecycle = nil
}

func equalEvents(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngineLifecycleOrdering(t *testing.T) {
	engine := NewEngine(nil, nil)
	p := &recordingPlugin{}
	if err := engine.AddPlugin(p); err != nil {
		t.Fatal(err)
	}
	if err := engine.AddPlugin(p); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}

	owner := NewLifecycleService(LifecycleStateResumed)
	engine.AttachActivity(&ActivityBinding{Lifecycle: owner})
	engine.DetachActivityForConfigChanges()
	engine.ReattachActivity(&ActivityBinding{Lifecycle: owner})
	engine.Destroy()

	want := []string{"attach", "activity", "activity-config-detach", "activity-reattach", "activity-detach", "detach"}
	if !equalEvents(p.events, want) {
		t.Errorf("events = %v, want %v", p.events, want)
	}
}

func TestEngineAttachesLatePluginToActivity(t *testing.T) {
	engine := NewEngine(nil, nil)
	owner := NewLifecycleService(LifecycleStateResumed)
	engine.AttachActivity(&ActivityBinding{Lifecycle: owner})

	p := &recordingPlugin{}
	if err := engine.AddPlugin(p); err != nil {
		t.Fatal(err)
	}
	if p.lifecycle != owner {
		t.Error("late plugin should receive the current activity")
	}
	if !engine.RemovePlugin(p) {
		t.Fatal("RemovePlugin should find the plugin")
	}
	want := []string{"attach", "activity", "activity-detach", "detach"}
	if !equalEvents(p.events, want) {
		t.Errorf("events = %v, want %v", p.events, want)
	}
}

func TestEngineAttachFailure(t *testing.T) {
	captureReports(t)
	engine := NewEngine(nil, nil)
	boom := errors.New("boom")
	p := &recordingPlugin{attachErr: boom}
	if err := engine.AddPlugin(p); !errors.Is(err, boom) {
		t.Fatalf("expected attach error, got %v", err)
	}
	if engine.RemovePlugin(p) {
		t.Error("failed plugin must not be tracked")
	}
}

func TestExecutorFunc(t *testing.T) {
	var nilExec ExecutorFunc
	if nilExec.Post(func() {}) {
		t.Error("nil ExecutorFunc should drop callbacks")
	}
	ran := false
	if !InlineExecutor.Post(func() { ran = true }) || !ran {
		t.Error("InlineExecutor should run the callback")
	}
	if InlineExecutor.Post(nil) {
		t.Error("nil callback should be rejected")
	}
}
