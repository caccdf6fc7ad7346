package authz

import (
	"context"
	"testing"
)

func TestRegoAuthorizer_DefaultPolicy(t *testing.T) {
	a, err := NewRegoAuthorizer(context.Background(), "", "", ModeEnforce)
	if err != nil {
		t.Fatal(err)
	}
	obj := ObjectForResource("custom_config_gotrue")

	allowed, enforced, err := a.Authorize(SubjectFromRoleSlug(RoleProjectAdmin), "proj1", obj, ActionUpdate)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}

	allowed, _, err = a.Authorize(SubjectFromRoleSlug(RoleDeveloper), "proj1", obj, ActionUpdate)
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Fatal("expected deny")
	}

	allowed, _, err = a.Authorize(SubjectFromRoleSlug(RoleDeveloper), "proj1", obj, ActionRead)
	if err != nil || !allowed {
		t.Fatalf("allowed=%v err=%v", allowed, err)
	}

	allowed, _, err = a.Authorize("role:nobody", "proj1", obj, ActionRead)
	if err != nil || allowed {
		t.Fatalf("allowed=%v err=%v", allowed, err)
	}
}

func TestRegoAuthorizer_Modes(t *testing.T) {
	ctx := context.Background()
	shadow, err := NewRegoAuthorizer(ctx, "", "", ModeShadow)
	if err != nil {
		t.Fatal(err)
	}
	if shadow.Mode() != ModeShadow {
		t.Fatalf("mode=%q", shadow.Mode())
	}
	allowed, enforced, err := shadow.Authorize("role:nobody", "p1", "o", ActionUpdate)
	if err != nil || allowed || enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}

	disabled, err := NewRegoAuthorizer(ctx, "", "", ModeDisabled)
	if err != nil {
		t.Fatal(err)
	}
	if allowed, enforced, _ := disabled.Authorize("role:nobody", "p1", "o", ActionUpdate); !allowed || enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}

	unknown := &RegoAuthorizer{query: shadow.query, mode: Mode("nope")}
	if _, _, err := unknown.Authorize("role:x", "p1", "o", ActionRead); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegoAuthorizer_CustomModule(t *testing.T) {
	ctx := context.Background()
	module := `package custom

default allow := false

allow if input.domain == "proj1"
`
	a, err := NewRegoAuthorizer(ctx, module, "data.custom.allow", ModeEnforce)
	if err != nil {
		t.Fatal(err)
	}
	if allowed, _, _ := a.Authorize("role:x", "proj1", "o", ActionUpdate); !allowed {
		t.Fatal("expected allow")
	}
	if allowed, _, _ := a.Authorize("role:x", "proj2", "o", ActionUpdate); allowed {
		t.Fatal("expected deny")
	}

	if _, err := NewRegoAuthorizer(ctx, "package broken\nallow if {", "", ModeEnforce); err == nil {
		t.Fatal("expected compile error")
	}
}
