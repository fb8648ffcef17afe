package main

import (
	"testing"

	"github.com/sttts/kcwatch/internal/descriptor"
)

func TestParseWatch(t *testing.T) {
	tests := []struct {
		arg     string
		want    *descriptor.Descriptor
		wantErr bool
	}{
		{arg: "Pod", want: &descriptor.Descriptor{Kind: "Pod", IsList: true}},
		{arg: "Pod/default", want: &descriptor.Descriptor{Kind: "Pod", Namespace: "default", IsList: true}},
		{arg: "Pod/default/web", want: &descriptor.Descriptor{Kind: "Pod", Namespace: "default", Name: "web"}},
		{arg: "Node//worker", want: &descriptor.Descriptor{Kind: "Node", Name: "worker"}},
		{arg: "", wantErr: true},
		{arg: "/default", wantErr: true},
		{arg: "a/b/c/d", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseWatch(tt.arg)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.arg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tt.arg, err)
		}
		if !descriptor.Equal(got, tt.want) {
			t.Fatalf("%q: got %+v, want %+v", tt.arg, got, tt.want)
		}
	}
}

func TestWatchFlags(t *testing.T) {
	w := watchFlags{}
	if err := w.Set("pods=Pod/default"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Set("pods=Pod/kube-system"); err == nil {
		t.Fatalf("expected duplicate key error")
	}
	if err := w.Set("novalue"); err == nil {
		t.Fatalf("expected format error")
	}
	if w["pods"] != "Pod/default" {
		t.Fatalf("unexpected flags %v", w)
	}
}

func TestSingleFlagsDescriptor(t *testing.T) {
	if _, err := (singleFlags{}).descriptor(); err == nil {
		t.Fatalf("expected error without kind")
	}

	d, err := singleFlags{kind: "Pod", namespace: "default", selector: "app=web,tier in (fe)", limit: 5}.descriptor()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.IsList || d.Limit != 5 || d.Selector == nil || d.Selector.MatchLabels["app"] != "web" || len(d.Selector.MatchExpressions) != 1 {
		t.Fatalf("unexpected descriptor %+v", d)
	}

	d, err = singleFlags{kind: "Pod", name: "web"}.descriptor()
	if err != nil || d.IsList {
		t.Fatalf("expected singleton for a named watch, got %+v (%v)", d, err)
	}
	d, _ = singleFlags{kind: "Pod", name: "web", list: true}.descriptor()
	if !d.IsList {
		t.Fatalf("expected -list to force a list")
	}

	if _, err := (singleFlags{kind: "Pod", selector: "a in ("}).descriptor(); err == nil {
		t.Fatalf("expected selector parse error")
	}
}
