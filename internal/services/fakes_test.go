package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tbourn/files-cache-gateway/internal/domain"
	"github.com/tbourn/files-cache-gateway/internal/repo"
	"github.com/tbourn/files-cache-gateway/internal/upstream"
)

// ---------- test helpers ----------

var errBoom = errors.New("boom")

func key(id int, typ string) string { return fmt.Sprintf("%d:%s", id, typ) }

// memStore is a map-backed CacheStore with error injection.
type memStore struct {
	mu     sync.Mutex
	rows   map[string]domain.CachedFile
	nextID uint

	findErr   error
	createErr error
	deleteErr error

	// beforeCreate runs (unlocked) ahead of each Create.
	beforeCreate func(id int, typ string)

	creates atomic.Int32
	deletes atomic.Int32
}

func newMemStore() *memStore { return &memStore{rows: map[string]domain.CachedFile{}} }

func (m *memStore) put(id int, typ string, ptr domain.Pointer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.rows[key(id, typ)] = domain.CachedFile{ID: m.nextID, ObjectID: id, ObjectType: typ, ChatID: ptr.ChatID, MessageID: ptr.MessageID}
}

func (m *memStore) get(id int, typ string) (domain.CachedFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rows[key(id, typ)]
	return f, ok
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memStore) Find(_ context.Context, id int, typ string) (*domain.CachedFile, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	f, ok := m.get(id, typ)
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &f, nil
}

func (m *memStore) Create(_ context.Context, id int, typ string, ptr domain.Pointer) (*domain.CachedFile, error) {
	if m.beforeCreate != nil {
		m.beforeCreate(id, typ)
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[key(id, typ)]; ok {
		return nil, repo.ErrDuplicate
	}
	m.creates.Add(1)
	m.nextID++
	f := domain.CachedFile{ID: m.nextID, ObjectID: id, ObjectType: typ, ChatID: ptr.ChatID, MessageID: ptr.MessageID}
	m.rows[key(id, typ)] = f
	return &f, nil
}

func (m *memStore) Delete(_ context.Context, id int, typ string) (*domain.CachedFile, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rows[key(id, typ)]
	if !ok {
		return nil, nil
	}
	m.deletes.Add(1)
	delete(m.rows, key(id, typ))
	return &f, nil
}

// fakeCatalog serves books by id and a fixed listing split into pages.
type fakeCatalog struct {
	mu    sync.Mutex
	books map[int]domain.Book

	getErr  error
	pageErr map[int]error
	// listGate, when set, blocks ListBooks until closed.
	listGate chan struct{}

	getCalls atomic.Int32
	pages    []int
}

func newFakeCatalog(books ...domain.Book) *fakeCatalog {
	c := &fakeCatalog{books: map[int]domain.Book{}}
	for _, b := range books {
		c.books[b.ID] = b
	}
	return c
}

func (c *fakeCatalog) sortedBooks() []domain.Book {
	out := make([]domain.Book, 0, len(c.books))
	for id := 1; len(out) < len(c.books); id++ {
		if b, ok := c.books[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

func (c *fakeCatalog) GetBook(_ context.Context, id int) (*domain.Book, error) {
	c.getCalls.Add(1)
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return &b, nil
}

func (c *fakeCatalog) ListBooks(ctx context.Context, page, size int, _ upstream.BookFilter) (*domain.BooksPage, error) {
	if c.listGate != nil {
		select {
		case <-c.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = append(c.pages, page)
	if err := c.pageErr[page]; err != nil {
		return nil, err
	}

	all := c.sortedBooks()
	pages := (len(all) + size - 1) / size
	lo := min((page-1)*size, len(all))
	hi := min(lo+size, len(all))
	return &domain.BooksPage{
		Items: all[lo:hi],
		Total: len(all),
		Page:  page,
		Size:  size,
		Pages: pages,
	}, nil
}

// fakeRetriever returns a fixed payload per key.
type fakeRetriever struct {
	fetchErr    error
	filenameErr error
	// fetchGate, when set, blocks Fetch until closed.
	fetchGate chan struct{}

	fetchCalls    atomic.Int32
	filenameCalls atomic.Int32
}

func payload(id int, typ string) string { return fmt.Sprintf("content of %d.%s", id, typ) }

func (r *fakeRetriever) Fetch(_ context.Context, _, id int, typ string) (*upstream.Content, error) {
	r.fetchCalls.Add(1)
	if r.fetchGate != nil {
		<-r.fetchGate
	}
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	body := payload(id, typ)
	return &upstream.Content{
		Body:     io.NopCloser(bytes.NewBufferString(body)),
		Filename: fmt.Sprintf("book_%d.%s", id, typ),
		Size:     int64(len(body)),
	}, nil
}

func (r *fakeRetriever) GetFilename(_ context.Context, id int, typ string) (domain.FilenameData, error) {
	r.filenameCalls.Add(1)
	if r.filenameErr != nil {
		return domain.FilenameData{}, r.filenameErr
	}
	return domain.FilenameData{Filename: fmt.Sprintf("Книга_%d.%s", id, typ)}, nil
}

type upload struct {
	Filename string
	Caption  string
	Data     string
}

// fakeRelay keeps uploaded payloads in memory, keyed by pointer.
type fakeRelay struct {
	mu      sync.Mutex
	blobs   map[domain.Pointer]string
	uploads []upload
	nextMsg int64

	uploadErr error
	// missing pointers fail Download.
	missing map[domain.Pointer]bool
	// downloadErr fails every Download.
	downloadErr error

	downloadCalls atomic.Int32
	closed        atomic.Int32
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{blobs: map[domain.Pointer]string{}, missing: map[domain.Pointer]bool{}}
}

func (r *fakeRelay) Upload(_ context.Context, content io.Reader, filename, caption string) (domain.Pointer, error) {
	if r.uploadErr != nil {
		return domain.Pointer{}, r.uploadErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return domain.Pointer{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMsg++
	ptr := domain.Pointer{ChatID: -100, MessageID: r.nextMsg}
	r.blobs[ptr] = string(data)
	r.uploads = append(r.uploads, upload{Filename: filename, Caption: caption, Data: string(data)})
	return ptr, nil
}

func (r *fakeRelay) Download(_ context.Context, ptr domain.Pointer) (io.ReadCloser, error) {
	r.downloadCalls.Add(1)
	if r.downloadErr != nil {
		return nil, r.downloadErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.blobs[ptr]
	if !ok || r.missing[ptr] {
		return nil, upstream.ErrNotFound
	}
	return &trackedBody{Reader: bytes.NewBufferString(data), closed: &r.closed}, nil
}

func (r *fakeRelay) uploadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uploads)
}

type trackedBody struct {
	io.Reader
	closed *atomic.Int32
}

func (b *trackedBody) Close() error {
	b.closed.Add(1)
	return nil
}

type fixture struct {
	svc       *CacheService
	store     *memStore
	catalog   *fakeCatalog
	retriever *fakeRetriever
	relay     *fakeRelay
}

func newFixture(books ...domain.Book) *fixture {
	f := &fixture{
		store:     newMemStore(),
		catalog:   newFakeCatalog(books...),
		retriever: &fakeRetriever{},
		relay:     newFakeRelay(),
	}
	f.svc = NewCacheService(f.store, f.catalog, f.retriever, f.relay)
	f.svc.Log = zerolog.Nop()
	return f
}

func book(id int, types ...string) domain.Book {
	return domain.Book{
		ID:             id,
		Title:          fmt.Sprintf("Book %d", id),
		AvailableTypes: types,
		Source:         domain.Source{ID: 1, Name: "flibusta"},
		Authors:        []domain.Person{{FirstName: "Лев", LastName: "Толстой"}},
	}
}
