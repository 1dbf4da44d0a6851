package resource

import (
	"context"
	"fmt"

	"github.com/containerd/containerd/content"
	"github.com/containerd/containerd/content/local"
	"github.com/containerd/containerd/errdefs"
	digest "github.com/opencontainers/go-digest"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/replica"
)

// ContentPlugin is a physical-storage plugin backed by a containerd
// content-addressable blob store. physical_path is the blob's digest
// string ("sha256:<hex>"); CLOSE commits the writer (which, for a
// content store, finalizes the blob and yields its digest; no expected
// size or digest is passed, so none is checked), and CHKSUM is
// therefore already known rather than recomputed. This is a
// natural fit for the CREATE/CLOSE/STAT/CHKSUM verbs this module is in
// scope for: it never needs a byte-stream read/write API of its own,
// since content.Writer already provides the only write path the
// non-goal physical-I/O boundary permits us to touch.
type ContentPlugin struct {
	name  string
	store content.Store

	writers map[int]content.Writer
	nextFD  int
}

// NewContentPlugin builds a ContentPlugin backed by a local content
// store rooted at dir.
func NewContentPlugin(name, dir string) (*ContentPlugin, error) {
	store, err := local.NewStore(dir)
	if err != nil {
		return nil, errs.Wrap(errs.SysConfigFileErr, "resource.NewContentPlugin", err)
	}
	return &ContentPlugin{
		name:    name,
		store:   store,
		writers: make(map[int]content.Writer),
		nextFD:  1,
	}, nil
}

func (p *ContentPlugin) Name() string { return p.name }

func (p *ContentPlugin) ResolveRescHier(_ context.Context, obj *replica.Object, op Operation, _ replica.ConditionalInput) (string, float64, error) {
	hier := p.name
	if obj != nil {
		if existing := obj.ReplicaByHierarchy(hier); existing != nil {
			return hier, 1.0, nil
		}
		if op != OpCreate {
			return "", 0.0, nil
		}
	}
	return hier, 1.0, nil
}

func (p *ContentPlugin) Create(ctx context.Context, r *replica.Replica) (int, error) {
	ref := fmt.Sprintf("dataobjcore-%d-%d", r.DataID, r.ReplicaNumber)
	w, err := p.store.Writer(ctx, content.WithRef(ref))
	if err != nil {
		return 0, errs.Wrap(errs.SysLibraryError, "resource.ContentPlugin.Create", err)
	}

	fd := p.nextFD
	p.nextFD++
	p.writers[fd] = w
	r.PhysicalPath = "" // unknown until Close computes the digest
	r.Mode = ref        // record the writer ref; Open and Close locate the blob by digest and fd instead
	return fd, nil
}

func (p *ContentPlugin) Open(ctx context.Context, r *replica.Replica) (int, error) {
	dgst, err := digest.Parse(r.PhysicalPath)
	if err != nil {
		return 0, errs.Wrap(errs.SysInvalidInputParam, "resource.ContentPlugin.Open", err)
	}
	if _, err := p.store.Info(ctx, dgst); err != nil {
		return 0, errs.Wrap(errs.SysReplicaDoesNotExist, "resource.ContentPlugin.Open", err)
	}
	return 0, nil
}

func (p *ContentPlugin) Close(ctx context.Context, r *replica.Replica, fd int) error {
	w, ok := p.writers[fd]
	if !ok {
		// A read-open has no writer to close; nothing to do.
		return nil
	}
	delete(p.writers, fd)

	if err := w.Commit(ctx, 0, ""); err != nil && !errdefs.IsAlreadyExists(err) {
		_ = w.Close()
		return errs.Wrap(errs.SysLibraryError, "resource.ContentPlugin.Close", err)
	}
	status, err := w.Status()
	if err == nil {
		r.PhysicalPath = w.Digest().String()
		r.Size = status.Offset
	}
	return nil
}

func (p *ContentPlugin) Stat(ctx context.Context, r *replica.Replica) (Stat, error) {
	dgst, err := digest.Parse(r.PhysicalPath)
	if err != nil {
		return Stat{}, errs.Wrap(errs.SysInvalidInputParam, "resource.ContentPlugin.Stat", err)
	}
	info, err := p.store.Info(ctx, dgst)
	if err != nil {
		return Stat{}, errs.Wrap(errs.SysLibraryError, "resource.ContentPlugin.Stat", err)
	}
	return Stat{Size: info.Size, ModifyTS: formatTS(info.CreatedAt)}, nil
}

// Chksum returns the replica's digest directly: for a content-addressable
// store the physical path already is the checksum, so no recomputation
// pass over the bytes is needed.
func (p *ContentPlugin) Chksum(_ context.Context, r *replica.Replica) (string, error) {
	if r.PhysicalPath == "" {
		return "", errs.New(errs.SysInvalidInputParam, "resource.ContentPlugin.Chksum")
	}
	return r.PhysicalPath, nil
}

func (p *ContentPlugin) Unlink(ctx context.Context, r *replica.Replica) error {
	dgst, err := digest.Parse(r.PhysicalPath)
	if err != nil {
		return nil // never committed; nothing to remove
	}
	if err := p.store.Delete(ctx, dgst); err != nil {
		return errs.Wrap(errs.SysLibraryError, "resource.ContentPlugin.Unlink", err)
	}
	return nil
}
