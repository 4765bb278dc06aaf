package links

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"

	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

// fakeStore keeps links in memory and pages with offset cursors. The
// manager treats store cursors as opaque, so the encoding here does not
// need to match the real store's.
type fakeStore struct {
	links     []*types.BlockLink
	blocks    map[string]*types.MemoryBlock
	pairCalls int
}

func (f *fakeStore) InsertLink(_ context.Context, link *types.BlockLink, opts storage.InsertLinkOptions) error {
	for _, l := range f.links {
		if l.FromID == link.FromID && l.ToID == link.ToID && l.Relation == link.Relation {
			if opts.IfNotExists {
				return nil
			}
			return storage.ErrDuplicateLink
		}
	}
	f.links = append(f.links, link)
	return nil
}

func (f *fakeStore) InsertLinkPair(ctx context.Context, forward, inverse *types.BlockLink) error {
	f.pairCalls++
	if err := f.InsertLink(ctx, forward, storage.InsertLinkOptions{}); err != nil {
		return err
	}
	return f.InsertLink(ctx, inverse, storage.InsertLinkOptions{})
}

func (f *fakeStore) DeleteLink(_ context.Context, fromID, toID string, relation types.Relation) error {
	for i, l := range f.links {
		if l.FromID == fromID && l.ToID == toID && l.Relation == relation {
			f.links = append(f.links[:i], f.links[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) page(blockID string, q types.LinkQuery, outgoing bool) (*types.LinkPage, error) {
	var matched []*types.BlockLink
	for _, l := range f.links {
		anchor := l.FromID
		if !outgoing {
			anchor = l.ToID
		}
		if anchor != blockID {
			continue
		}
		if q.Relation != "" && l.Relation != q.Relation {
			continue
		}
		matched = append(matched, l)
	}
	key := func(l *types.BlockLink) string {
		if outgoing {
			return l.ToID
		}
		return l.FromID
	}
	sort.Slice(matched, func(i, j int) bool {
		if key(matched[i]) != key(matched[j]) {
			return key(matched[i]) < key(matched[j])
		}
		return matched[i].Relation < matched[j].Relation
	})

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return nil, errors.New("bad fake cursor")
		}
		offset = n
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page := &types.LinkPage{Links: matched[offset:end]}
	if end < len(matched) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeStore) LinksFrom(_ context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	return f.page(blockID, q, true)
}

func (f *fakeStore) LinksTo(_ context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	return f.page(blockID, q, false)
}

func (f *fakeStore) CountLinksTo(_ context.Context, blockID string, relations []types.Relation) (int, error) {
	n := 0
	for _, l := range f.links {
		if l.ToID != blockID {
			continue
		}
		if len(relations) == 0 {
			n++
			continue
		}
		for _, r := range relations {
			if l.Relation == r {
				n++
				break
			}
		}
	}
	return n, nil
}

func (f *fakeStore) GetBlocks(_ context.Context, ids []string) ([]*types.MemoryBlock, error) {
	var out []*types.MemoryBlock
	for _, id := range ids {
		if b, ok := f.blocks[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func newTestManager() (*Manager, *fakeStore) {
	fs := &fakeStore{blocks: make(map[string]*types.MemoryBlock)}
	return NewManager(fs), fs
}

func TestCreateLinkResolvesAlias(t *testing.T) {
	m, fs := newTestManager()

	created, err := m.CreateLink(context.Background(), CreateLinkInput{
		FromID:   "task-1",
		ToID:     "task-2",
		Relation: "blocked_by",
	})
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("len(created) = %d, want 1", len(created))
	}
	if created[0].Relation != types.RelationDependsOn {
		t.Errorf("relation = %s, want %s", created[0].Relation, types.RelationDependsOn)
	}
	if len(fs.links) != 1 {
		t.Errorf("stored %d links, want 1", len(fs.links))
	}
}

func TestCreateLinkUnknownRelation(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.CreateLink(context.Background(), CreateLinkInput{
		FromID:   "a",
		ToID:     "b",
		Relation: "vaguely_associated_with",
	})
	if !errors.Is(err, ErrInvalidRelation) {
		t.Errorf("error = %v, want ErrInvalidRelation", err)
	}
}

func TestCreateLinkSelfLink(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.CreateLink(context.Background(), CreateLinkInput{
		FromID:   "a",
		ToID:     "a",
		Relation: "related_to",
	})
	if err == nil {
		t.Error("CreateLink allowed a self link")
	}
}

func TestCreateLinkBidirectional(t *testing.T) {
	m, fs := newTestManager()

	created, err := m.CreateLink(context.Background(), CreateLinkInput{
		FromID:        "task-1",
		ToID:          "epic-1",
		Relation:      "subtask_of",
		Bidirectional: true,
	})
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("len(created) = %d, want 2", len(created))
	}
	if created[0].Relation != types.RelationSubtaskOf {
		t.Errorf("forward relation = %s, want subtask_of", created[0].Relation)
	}
	if created[1].Relation != types.RelationParentOf {
		t.Errorf("inverse relation = %s, want parent_of", created[1].Relation)
	}
	if created[1].FromID != "epic-1" || created[1].ToID != "task-1" {
		t.Errorf("inverse endpoints = %s->%s, want epic-1->task-1", created[1].FromID, created[1].ToID)
	}
	if fs.pairCalls != 1 {
		t.Errorf("pairCalls = %d, want 1 (both edges in one transaction)", fs.pairCalls)
	}
}

func TestCreateLinkDuplicate(t *testing.T) {
	m, _ := newTestManager()
	in := CreateLinkInput{FromID: "a", ToID: "b", Relation: "related_to"}

	if _, err := m.CreateLink(context.Background(), in); err != nil {
		t.Fatalf("first CreateLink: %v", err)
	}
	if _, err := m.CreateLink(context.Background(), in); !errors.Is(err, storage.ErrDuplicateLink) {
		t.Errorf("second CreateLink error = %v, want ErrDuplicateLink", err)
	}
}

func TestDeleteLinkResolvesAlias(t *testing.T) {
	m, _ := newTestManager()

	if _, err := m.CreateLink(context.Background(), CreateLinkInput{
		FromID: "a", ToID: "b", Relation: "depends_on",
	}); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if err := m.DeleteLink(context.Background(), "a", "b", "is_blocked_by"); err != nil {
		t.Fatalf("DeleteLink via alias: %v", err)
	}
	if err := m.DeleteLink(context.Background(), "a", "b", "depends_on"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second DeleteLink error = %v, want ErrNotFound", err)
	}
}

func seedGraph(t *testing.T, m *Manager) {
	t.Helper()
	edges := []CreateLinkInput{
		{FromID: "a", ToID: "b1", Relation: "related_to"},
		{FromID: "a", ToID: "b2", Relation: "related_to"},
		{FromID: "a", ToID: "b3", Relation: "related_to"},
		{FromID: "c1", ToID: "a", Relation: "depends_on"},
		{FromID: "c2", ToID: "a", Relation: "mentions"},
	}
	for _, e := range edges {
		if _, err := m.CreateLink(context.Background(), e); err != nil {
			t.Fatalf("seed CreateLink(%+v): %v", e, err)
		}
	}
}

func TestLinksDirections(t *testing.T) {
	m, _ := newTestManager()
	seedGraph(t, m)

	out, err := m.Links(context.Background(), "a", Query{Direction: types.DirectionOutgoing})
	if err != nil {
		t.Fatalf("Links outgoing: %v", err)
	}
	if len(out.Links) != 3 {
		t.Errorf("outgoing = %d links, want 3", len(out.Links))
	}

	in, err := m.Links(context.Background(), "a", Query{Direction: types.DirectionIncoming})
	if err != nil {
		t.Fatalf("Links incoming: %v", err)
	}
	if len(in.Links) != 2 {
		t.Errorf("incoming = %d links, want 2", len(in.Links))
	}

	both, err := m.Links(context.Background(), "a", Query{Direction: types.DirectionBoth})
	if err != nil {
		t.Fatalf("Links both: %v", err)
	}
	if len(both.Links) != 5 {
		t.Errorf("both = %d links, want 5", len(both.Links))
	}
	if both.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty on final page", both.NextCursor)
	}
}

func TestLinksRelationFilter(t *testing.T) {
	m, _ := newTestManager()
	seedGraph(t, m)

	page, err := m.Links(context.Background(), "a", Query{
		Direction: types.DirectionIncoming,
		Relation:  "blocked_by", // alias of depends_on
	})
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if len(page.Links) != 1 || page.Links[0].FromID != "c1" {
		t.Errorf("filtered links = %+v, want only c1->a depends_on", page.Links)
	}
}

func TestLinksBothPagination(t *testing.T) {
	m, _ := newTestManager()
	seedGraph(t, m)

	var collected []*types.BlockLink
	cursor := ""
	pages := 0
	for {
		page, err := m.Links(context.Background(), "a", Query{
			Direction: types.DirectionBoth,
			Cursor:    cursor,
			Limit:     2,
		})
		if err != nil {
			t.Fatalf("Links page %d: %v", pages, err)
		}
		collected = append(collected, page.Links...)
		pages++
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(collected) != 5 {
		t.Fatalf("collected %d links, want 5", len(collected))
	}
	// Outgoing pages come before incoming ones.
	for i, l := range collected[:3] {
		if l.FromID != "a" {
			t.Errorf("link %d = %s->%s, want outgoing first", i, l.FromID, l.ToID)
		}
	}
	for i, l := range collected[3:] {
		if l.ToID != "a" {
			t.Errorf("link %d = %s->%s, want incoming last", i+3, l.FromID, l.ToID)
		}
	}
}

func TestLinksInvalidCursor(t *testing.T) {
	m, _ := newTestManager()

	if _, err := m.Links(context.Background(), "a", Query{
		Direction: types.DirectionBoth,
		Cursor:    "no-phase-prefix",
	}); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("error = %v, want ErrInvalidCursor", err)
	}
	if _, err := m.Links(context.Background(), "a", Query{
		Direction: types.DirectionBoth,
		Cursor:    "sideways:abc",
	}); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("error = %v, want ErrInvalidCursor", err)
	}
}

func TestLinksInvalidDirection(t *testing.T) {
	m, _ := newTestManager()

	if _, err := m.Links(context.Background(), "a", Query{Direction: "diagonal"}); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("error = %v, want ErrInvalidDirection", err)
	}
}

func TestLinkedBlocks(t *testing.T) {
	m, fs := newTestManager()
	seedGraph(t, m)
	fs.blocks["b1"] = &types.MemoryBlock{ID: "b1"}
	fs.blocks["b2"] = &types.MemoryBlock{ID: "b2"}
	fs.blocks["b3"] = &types.MemoryBlock{ID: "b3"}
	fs.blocks["c1"] = &types.MemoryBlock{ID: "c1"}
	// c2 does not exist; its link gets dropped.

	linked, cursor, err := m.LinkedBlocks(context.Background(), "a", Query{Direction: types.DirectionBoth})
	if err != nil {
		t.Fatalf("LinkedBlocks: %v", err)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty", cursor)
	}
	if len(linked) != 4 {
		t.Fatalf("len(linked) = %d, want 4 (c2 dropped)", len(linked))
	}
	for _, ln := range linked {
		switch {
		case ln.Link.FromID == "a":
			if ln.Direction != types.DirectionOutgoing {
				t.Errorf("link a->%s direction = %s, want outgoing", ln.Link.ToID, ln.Direction)
			}
			if ln.Block.ID != ln.Link.ToID {
				t.Errorf("far block = %s, want %s", ln.Block.ID, ln.Link.ToID)
			}
		default:
			if ln.Direction != types.DirectionIncoming {
				t.Errorf("link %s->a direction = %s, want incoming", ln.Link.FromID, ln.Direction)
			}
			if ln.Block.ID != ln.Link.FromID {
				t.Errorf("far block = %s, want %s", ln.Block.ID, ln.Link.FromID)
			}
		}
	}
}

func TestCountProtectedDependents(t *testing.T) {
	m, _ := newTestManager()
	seedGraph(t, m)

	// Incoming depends_on counts; incoming mentions does not; outgoing
	// related_to never does.
	n, err := m.CountProtectedDependents(context.Background(), "a")
	if err != nil {
		t.Fatalf("CountProtectedDependents: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	n, err = m.CountProtectedDependents(context.Background(), "b1")
	if err != nil {
		t.Fatalf("CountProtectedDependents: %v", err)
	}
	if n != 0 {
		t.Errorf("count for b1 = %d, want 0", n)
	}
}
