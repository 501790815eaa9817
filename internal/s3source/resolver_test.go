package s3source

import (
	"context"
	"testing"
)

func TestResolvePassesThroughNonS3URLs(t *testing.T) {
	r := &Resolver{}
	for _, u := range []string{
		"file:///tmp/in.mp4",
		"https://example.com/in.mp4",
		"",
	} {
		got, err := r.Resolve(context.Background(), u)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", u, err)
		}
		if got != u {
			t.Errorf("Resolve(%q) = %q, want unchanged", u, got)
		}
	}
}

func TestResolveRejectsS3URLMissingKey(t *testing.T) {
	r := &Resolver{}
	if _, err := r.Resolve(context.Background(), "s3://bucket-only"); err == nil {
		t.Error("Resolve(\"s3://bucket-only\") = nil error, want an error for a missing key")
	}
}

func TestResolveRejectsMalformedURL(t *testing.T) {
	r := &Resolver{}
	if _, err := r.Resolve(context.Background(), "://not a url"); err == nil {
		t.Error("Resolve on a malformed URL = nil error, want an error")
	}
}
