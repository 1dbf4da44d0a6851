package resource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/replica"
)

// FSPlugin is the default physical-storage plugin: a vault directory on
// the local filesystem, checksummed with sha256. It always votes 1.0
// for any operation targeting its own root name (or, for CREATE, any
// operation at all), and 0.0 otherwise: a single-resource deployment's
// plugin never needs to compete for votes.
type FSPlugin struct {
	name      string
	vaultRoot string

	mu  sync.Mutex
	fds map[int]*os.File
	nextFD int
}

// NewFSPlugin builds an FSPlugin rooted at vaultRoot, registered under
// root resource name.
func NewFSPlugin(name, vaultRoot string) *FSPlugin {
	return &FSPlugin{
		name:      name,
		vaultRoot: vaultRoot,
		fds:       make(map[int]*os.File),
		nextFD:    1,
	}
}

func (p *FSPlugin) Name() string { return p.name }

func (p *FSPlugin) ResolveRescHier(_ context.Context, obj *replica.Object, op Operation, hints replica.ConditionalInput) (string, float64, error) {
	hier := p.name

	if obj != nil {
		if existing := obj.ReplicaByHierarchy(hier); existing != nil {
			return hier, 1.0, nil
		}
		if op != OpCreate {
			// This root doesn't host a replica of the object; refuse
			// rather than claim it for a non-CREATE operation.
			return "", 0.0, nil
		}
	}
	return hier, 1.0, nil
}

func (p *FSPlugin) vaultPath(r *replica.Replica) string {
	if r.PhysicalPath != "" {
		return r.PhysicalPath
	}
	return filepath.Join(p.vaultRoot, fmt.Sprintf("%d.%d", r.DataID, r.ReplicaNumber))
}

func (p *FSPlugin) Create(_ context.Context, r *replica.Replica) (int, error) {
	path := p.vaultPath(r)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, errs.Wrap(errs.SysLibraryError, "resource.FSPlugin.Create", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return 0, errs.Wrap(errs.PhysicalPathAlreadyExists, "resource.FSPlugin.Create", err)
		}
		return 0, errs.Wrap(errs.SysLibraryError, "resource.FSPlugin.Create", err)
	}
	r.PhysicalPath = path

	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextFD
	p.nextFD++
	p.fds[fd] = f
	return fd, nil
}

func (p *FSPlugin) Open(_ context.Context, r *replica.Replica) (int, error) {
	f, err := os.OpenFile(p.vaultPath(r), os.O_RDWR, 0o644)
	if err != nil {
		return 0, errs.Wrap(errs.SysLibraryError, "resource.FSPlugin.Open", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextFD
	p.nextFD++
	p.fds[fd] = f
	return fd, nil
}

func (p *FSPlugin) Close(_ context.Context, _ *replica.Replica, fd int) error {
	p.mu.Lock()
	f, ok := p.fds[fd]
	delete(p.fds, fd)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.SysLibraryError, "resource.FSPlugin.Close", err)
	}
	return nil
}

func (p *FSPlugin) Stat(_ context.Context, r *replica.Replica) (Stat, error) {
	info, err := os.Stat(p.vaultPath(r))
	if err != nil {
		return Stat{}, errs.Wrap(errs.SysLibraryError, "resource.FSPlugin.Stat", err)
	}
	return Stat{Size: info.Size(), ModifyTS: formatTS(info.ModTime())}, nil
}

func (p *FSPlugin) Chksum(_ context.Context, r *replica.Replica) (string, error) {
	f, err := os.Open(p.vaultPath(r))
	if err != nil {
		return "", errs.Wrap(errs.SysLibraryError, "resource.FSPlugin.Chksum", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.Wrap(errs.SysLibraryError, "resource.FSPlugin.Chksum", err)
	}
	return "sha2:" + hex.EncodeToString(h.Sum(nil)), nil
}

func (p *FSPlugin) Unlink(_ context.Context, r *replica.Replica) error {
	if err := os.Remove(p.vaultPath(r)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.SysLibraryError, "resource.FSPlugin.Unlink", err)
	}
	return nil
}

func formatTS(t time.Time) string {
	return fmt.Sprintf("%011d", t.Unix())
}
