package access

import "testing"

func TestLayerPathRoundTrip(t *testing.T) {
	layers := []Layer{
		Public(),
		PowerpakPublished(),
		Tenant("t-42"),
		Founder("u-7"),
	}

	for _, layer := range layers {
		prefix, err := layer.BucketPath()
		if err != nil {
			t.Fatalf("BucketPath(%v) error = %v", layer, err)
		}
		got, ok := LayerFromPath(prefix + "/folder/slug.md")
		if !ok {
			t.Fatalf("LayerFromPath(%q) not recognized", prefix)
		}
		if got != layer {
			t.Errorf("round trip for %v: got %v", layer, got)
		}
	}
}

func TestBuildParsePathRoundTrip(t *testing.T) {
	layer := Tenant("acme")
	path, err := BuildPath(layer, "people", "grace")
	if err != nil {
		t.Fatalf("BuildPath() error = %v", err)
	}
	gotLayer, folder, slug, ok := ParsePath(path)
	if !ok {
		t.Fatalf("ParsePath(%q) not ok", path)
	}
	if gotLayer != layer || folder != "people" || slug != "grace" {
		t.Errorf("ParsePath(%q) = %v, %q, %q", path, gotLayer, folder, slug)
	}
}

func TestParsePathMalformed(t *testing.T) {
	cases := []string{
		"public",
		"public/only-one-segment.md",
		"unknown-prefix/people/grace.md",
		"",
		"renubu-tenant-/people/grace.md",
		"founder-/people/grace.md",
	}
	for _, path := range cases {
		if _, _, _, ok := ParsePath(path); ok {
			t.Errorf("ParsePath(%q) ok, want not ok", path)
		}
	}
}

func TestBucketPathUnknownLayer(t *testing.T) {
	if _, err := (Layer{Kind: LayerKind(99)}).BucketPath(); err == nil {
		t.Fatal("expected error for unknown layer kind")
	}
	if _, err := (Layer{Kind: LayerTenant}).BucketPath(); err == nil {
		t.Fatal("expected error for tenant layer without id")
	}
}

func TestScopeFromPath(t *testing.T) {
	cases := []struct {
		path  string
		scope Scope
	}{
		{"public/people/grace.md", ScopePublic},
		{"powerpak-published/guides/intro.md", ScopePowerpak},
		{"renubu-tenant-t1/projects/apollo.md", ScopeTenant},
		{"founder-u1/journal/today.md", ScopeUser},
		{"scratch/notes.md", ScopePrivate},
		{"", ScopePrivate},
	}
	for _, tc := range cases {
		if got := ScopeFromPath(tc.path); got != tc.scope {
			t.Errorf("ScopeFromPath(%q) = %q, want %q", tc.path, got, tc.scope)
		}
	}
}

func TestScopeMatrix(t *testing.T) {
	anon := Viewer{}
	subscriber := Viewer{UserID: "u2", Subscriptions: []string{"powerpak"}}
	member := Viewer{UserID: "u3", TenantID: "t1"}
	outsider := Viewer{UserID: "u4", TenantID: "t9"}
	owner := Viewer{UserID: "u1"}

	cases := []struct {
		name   string
		viewer Viewer
		path   string
		read   bool
		write  bool
	}{
		{name: "anon public", viewer: anon, path: "public/people/grace.md", read: true, write: false},
		{name: "owner public", viewer: owner, path: "public/people/grace.md", read: true, write: false},
		{name: "anon powerpak", viewer: anon, path: "powerpak-published/guides/intro.md", read: false, write: false},
		{name: "subscriber powerpak", viewer: subscriber, path: "powerpak-published/guides/intro.md", read: true, write: false},
		{name: "member tenant", viewer: member, path: "renubu-tenant-t1/projects/apollo.md", read: true, write: true},
		{name: "outsider tenant", viewer: outsider, path: "renubu-tenant-t1/projects/apollo.md", read: false, write: false},
		{name: "owner founder", viewer: owner, path: "founder-u1/journal/today.md", read: true, write: true},
		{name: "other founder", viewer: member, path: "founder-u1/journal/today.md", read: false, write: false},
		{name: "anon unknown prefix", viewer: anon, path: "mystery/notes/x.md", read: false, write: false},
		{name: "owner unknown prefix", viewer: owner, path: "mystery/notes/x.md", read: false, write: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRead(tc.viewer, tc.path); got != tc.read {
				t.Errorf("CanRead = %v, want %v", got, tc.read)
			}
			if got := CanWrite(tc.viewer, tc.path); got != tc.write {
				t.Errorf("CanWrite = %v, want %v", got, tc.write)
			}
		})
	}
}

func TestAccessibleLayers(t *testing.T) {
	v := Viewer{UserID: "u1", TenantID: "t1", Subscriptions: []string{"powerpak"}}
	layers := AccessibleLayers(v)
	want := []Layer{Public(), PowerpakPublished(), Tenant("t1"), Founder("u1")}
	if len(layers) != len(want) {
		t.Fatalf("AccessibleLayers = %v, want %v", layers, want)
	}
	for i := range want {
		if layers[i] != want[i] {
			t.Errorf("layer[%d] = %v, want %v", i, layers[i], want[i])
		}
	}

	anon := AccessibleLayers(Viewer{})
	if len(anon) != 1 || anon[0] != Public() {
		t.Errorf("anonymous AccessibleLayers = %v, want [public]", anon)
	}
}

func TestSharedFounderLayers(t *testing.T) {
	v := Viewer{
		UserID: "u1",
		SharedTopics: map[string][]string{
			"acme": {"u2", "u1", "u3"},
		},
	}
	layers := SharedFounderLayers(v, "acme")
	if len(layers) != 2 {
		t.Fatalf("SharedFounderLayers = %v, want two layers", layers)
	}
	if layers[0] != Founder("u2") || layers[1] != Founder("u3") {
		t.Errorf("SharedFounderLayers = %v", layers)
	}
	if got := SharedFounderLayers(v, "other"); got != nil {
		t.Errorf("unshared topic returned %v", got)
	}

	if !v.SharedBy("u2", "acme") {
		t.Error("SharedBy(u2, acme) = false, want true")
	}
	if v.SharedBy("u9", "acme") {
		t.Error("SharedBy(u9, acme) = true, want false")
	}
}
