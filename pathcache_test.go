package ftpclient

import "testing"

func TestPathCacheStoreLookup(t *testing.T) {
	c := NewPathCache()
	key := testServerKey()
	current := NewServerPath("/", PathStyleUnix)
	canonical := NewServerPath("/pub", PathStyleUnix)

	if _, ok := c.Lookup(key, current, "pub"); ok {
		t.Fatalf("expected no entry before Store")
	}

	c.Store(key, current, "pub", canonical)

	got, ok := c.Lookup(key, current, "pub")
	if !ok || got.String() != "/pub" {
		t.Fatalf("got %v %v", got, ok)
	}
}

func TestPathCacheInvalidatePrunesSubtree(t *testing.T) {
	c := NewPathCache()
	key := testServerKey()
	root := NewServerPath("/", PathStyleUnix)
	pub := NewServerPath("/pub", PathStyleUnix)

	c.Store(key, root, "pub", pub)
	c.Store(key, pub, "incoming", pub.AddSegment("incoming"))
	c.Store(key, root, "etc", NewServerPath("/etc", PathStyleUnix))

	c.Invalidate(key, pub)

	if _, ok := c.Lookup(key, root, "pub"); ok {
		t.Fatalf("expected the (root, pub) entry itself to be invalidated")
	}

	if _, ok := c.Lookup(key, pub, "incoming"); ok {
		t.Fatalf("expected entries rooted under pub to be invalidated")
	}

	if _, ok := c.Lookup(key, root, "etc"); !ok {
		t.Fatalf("unrelated entries must survive invalidation of a different subtree")
	}
}
