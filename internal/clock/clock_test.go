package clock

import (
	"strings"
	"testing"
	"time"
)

func TestNew_InvalidZone(t *testing.T) {
	if _, err := New("Not/AZone"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestNew_DefaultsToUTC(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.Location().String() != "UTC" {
		t.Errorf("location = %s, want UTC", c.Location())
	}
}

func TestClock_PromptContext(t *testing.T) {
	c := Fixed(time.Date(2026, 10, 16, 15, 4, 0, 0, time.UTC))
	got := c.PromptContext()
	want := "Current date and time: Friday, 16 October 2026, 3:04 PM UTC"
	if got != want {
		t.Errorf("PromptContext = %q, want %q", got, want)
	}
}

func TestClock_Format(t *testing.T) {
	c := Fixed(time.Date(2026, 10, 16, 15, 4, 0, 0, time.UTC))
	got := c.Format(time.Date(2026, 10, 16, 15, 14, 0, 0, time.UTC))
	if got != "Fri, 16 Oct 2026 at 3:14 PM UTC" {
		t.Errorf("Format = %q", got)
	}
}

func TestClock_Relative(t *testing.T) {
	now := time.Date(2026, 10, 16, 15, 4, 0, 0, time.UTC)
	c := Fixed(now)
	got := c.Relative(now.Add(10 * time.Minute))
	if !strings.Contains(got, "10 minutes") || !strings.HasSuffix(got, "from now") {
		t.Errorf("Relative = %q", got)
	}
}
