package auth

import (
	"testing"

	"github.com/kolosafo/bookflow/internal/model"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "hunter22") {
		t.Error("correct password should verify")
	}
	if CheckPassword(hash, "hunter23") {
		t.Error("wrong password should not verify")
	}
}

func TestIssueAndParseUserPair(t *testing.T) {
	issuer := NewIssuer("test-secret")

	u := &model.User{
		ID:           "user-1",
		Email:        "a@x.com",
		Status:       model.StatusActivated,
		Subscription: "basic",
	}
	pair, err := issuer.IssueUserPair(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("expected both tokens")
	}

	claims, err := issuer.Parse(pair.Access)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Email != "a@x.com" {
		t.Errorf("email = %q", claims.Email)
	}
	if claims.Subscription != "basic" {
		t.Errorf("subscription = %q, want basic", claims.Subscription)
	}
	if claims.SubjectType != SubjectUser {
		t.Errorf("subject type = %q", claims.SubjectType)
	}
}

func TestFreeTrialReadsAsPremium(t *testing.T) {
	issuer := NewIssuer("test-secret")

	u := &model.User{
		ID:           "user-1",
		Email:        "a@x.com",
		Status:       model.StatusActivated,
		Subscription: "free",
		FreeTrial:    true,
	}
	pair, err := issuer.IssueUserPair(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Parse(pair.Access)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subscription != "premium" {
		t.Errorf("trialing subscription = %q, want premium", claims.Subscription)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	pair, err := NewIssuer("secret-a").IssueUserPair(&model.User{ID: "u", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewIssuer("secret-b").Parse(pair.Access); err == nil {
		t.Fatal("token signed with another secret should not parse")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := NewIssuer("secret").Parse("not.a.token"); err == nil {
		t.Fatal("garbage should not parse")
	}
}
