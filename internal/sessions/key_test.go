package sessions

import "testing"

func TestBasicKeyMatchesSpecFormula(t *testing.T) {
	if got := BasicKey("cli", "u1"); got != "cli:u1" {
		t.Fatalf("expected cli:u1, got %q", got)
	}
}

func TestBuildSessionKeyDM(t *testing.T) {
	got := BuildSessionKey("default", "telegram", PeerDirect, "386246614")
	want := "agent:default:telegram:direct:386246614"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildSessionKeyGroup(t *testing.T) {
	got := BuildSessionKey("default", "telegram", PeerGroup, "-100123456")
	want := "agent:default:telegram:group:-100123456"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildGroupTopicSessionKey(t *testing.T) {
	got := BuildGroupTopicSessionKey("default", "telegram", "-100123456", 99)
	want := "agent:default:telegram:group:-100123456:topic:99"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildCronSessionKeyAvoidsDoublePrefixing(t *testing.T) {
	jobID := BuildSessionKey("default", "cron", PeerDirect, "reminder")
	got := BuildCronSessionKey("default", jobID, "run1")
	if got != "agent:default:cron:cron:direct:reminder:run:run1" {
		t.Fatalf("expected rest of jobID reused verbatim, got %q", got)
	}
}

func TestBuildCronSessionKeyPlainJobID(t *testing.T) {
	got := BuildCronSessionKey("default", "reminder", "run1")
	want := "agent:default:cron:reminder:run:run1"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestParseSessionKey(t *testing.T) {
	agentID, rest := ParseSessionKey("agent:default:telegram:direct:123")
	if agentID != "default" || rest != "telegram:direct:123" {
		t.Fatalf("unexpected parse: agentID=%q rest=%q", agentID, rest)
	}

	agentID, rest = ParseSessionKey("cli:u1")
	if agentID != "" || rest != "" {
		t.Fatalf("expected empty parse for non-canonical key, got agentID=%q rest=%q", agentID, rest)
	}
}

func TestIsSubagentAndCronSession(t *testing.T) {
	if !IsSubagentSession("agent:default:subagent:my-task") {
		t.Fatal("expected subagent session to be detected")
	}
	if IsSubagentSession("agent:default:telegram:direct:1") {
		t.Fatal("expected non-subagent session to not match")
	}
	if !IsCronSession("agent:default:cron:reminder:run:1") {
		t.Fatal("expected cron session to be detected")
	}
}

func TestPeerKindFromGroup(t *testing.T) {
	if PeerKindFromGroup(true) != PeerGroup {
		t.Fatal("expected group kind")
	}
	if PeerKindFromGroup(false) != PeerDirect {
		t.Fatal("expected direct kind")
	}
}

func TestBuildScopedSessionKeyGlobal(t *testing.T) {
	if got := BuildScopedSessionKey("default", "telegram", PeerDirect, "1", "global", "", ""); got != "global" {
		t.Fatalf("expected global, got %q", got)
	}
}

func TestBuildScopedSessionKeyGroupAlwaysFullKey(t *testing.T) {
	got := BuildScopedSessionKey("default", "telegram", PeerGroup, "-100", "per-sender", "main", "")
	want := "agent:default:telegram:group:-100"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildScopedSessionKeyDMMain(t *testing.T) {
	got := BuildScopedSessionKey("default", "telegram", PeerDirect, "1", "per-sender", "main", "")
	if got != "agent:default:main" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildScopedSessionKeyDMPerPeer(t *testing.T) {
	got := BuildScopedSessionKey("default", "telegram", PeerDirect, "1", "per-sender", "per-peer", "")
	if got != "agent:default:direct:1" {
		t.Fatalf("got %q", got)
	}
}
