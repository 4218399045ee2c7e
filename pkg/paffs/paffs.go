// Package paffs is the thin file/directory facade composed on top of the
// core interfaces: it is not a POSIX layer, carries no ACLs, and holds
// no invariants of its own beyond calling the core correctly. It exists
// so the user-facing operations spec.md names (mkDir, touch, open,
// read, write, seek, truncate, remove, getObjInfo, chmod, openDir,
// readDir, closeDir) have one concrete implementation to test against.
package paffs

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cirromulus/paffs-go/internal/device"
	"github.com/cirromulus/paffs-go/internal/dirent"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// RootInodeNo is the inode number Format assigns to the root directory:
// the tree's very first insert, since FindFirstFreeNo starts numbering
// at 1 on an empty tree.
const RootInodeNo = types.InodeNo(1)

// noopHandlers is passed to Device.Mount when the caller has no
// transactional topics of its own to apply; pkg/paffs does not wrap its
// own mutations in journal transactions (that property is exercised
// directly against internal/journal), so there is nothing to replay here
// beyond what the core itself journals internally.
var noopHandlers = interfaces.TopicHandlers{
	Apply:          map[types.Topic]interfaces.TopicHandler{},
	Uncheckpointed: map[types.Topic]interfaces.UncheckpointedHandler{},
}

// ObjInfo is the metadata getObjInfo returns about a path.
type ObjInfo struct {
	No       types.InodeNo
	Name     string
	Type     types.InodeType
	Size     uint64
	Perm     uint8
	Created  time.Time
	Modified time.Time
}

// FileSystem is a mounted (or freshly formatted) PAFFS image.
type FileSystem struct {
	dev *device.Device
}

// Format initializes a fresh image and creates its root directory. The
// returned FileSystem is immediately usable without a separate Mount.
func Format(raw interfaces.Driver, param types.Param, backend device.JournalBackend, mramBase, mramSize uint64, log *slog.Logger) (*FileSystem, error) {
	dev := device.New(raw, param, backend, mramBase, mramSize, log)
	if err := dev.Format(); err != nil {
		return nil, err
	}
	now := time.Now()
	root := types.Inode{No: RootInodeNo, Type: types.InodeTypeDir, Perm: 0o755, Created: now, Modified: now}
	if err := dev.Tree().InsertInode(root); err != nil {
		return nil, err
	}
	return &FileSystem{dev: dev}, nil
}

// Mount scans an existing image's superblock chain and replays its
// journal.
func Mount(raw interfaces.Driver, param types.Param, backend device.JournalBackend, mramBase, mramSize uint64, log *slog.Logger) (*FileSystem, error) {
	dev := device.New(raw, param, backend, mramBase, mramSize, log)
	if err := dev.Mount(noopHandlers); err != nil {
		return nil, err
	}
	return &FileSystem{dev: dev}, nil
}

// Unmount flushes every dirty cache and commits a final super-index
// generation.
func (fs *FileSystem) Unmount() error { return fs.dev.Unmount() }

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func (fs *FileSystem) readDirEntries(dir types.Inode) ([]dirent.Entry, error) {
	if dir.Size == 0 {
		return nil, nil
	}
	buf := make([]byte, dir.Size)
	if _, err := fs.dev.DataIO().ReadInodeData(&dir, 0, buf); err != nil {
		return nil, err
	}
	return dirent.Decode(buf)
}

// writeDirEntries rewrites dir's entire data stream from entries. There
// is no attempt to patch the stream in place; a directory's content is
// small enough that a full rewrite on every mkDir/touch/remove is the
// simplest correct approach, matching the rest of the core's "no
// optimisation beyond what spec.md asks for" scope.
func (fs *FileSystem) writeDirEntries(dir *types.Inode, entries []dirent.Entry) error {
	buf, err := dirent.Encode(entries)
	if err != nil {
		return err
	}
	if err := fs.dev.DataIO().Truncate(dir, 0); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	return fs.dev.DataIO().WriteInodeData(dir, 0, buf)
}

// resolve walks path from the root directory, following one dirent
// lookup per segment.
func (fs *FileSystem) resolve(path string) (types.Inode, error) {
	cur, ok, err := fs.dev.Tree().GetInode(RootInodeNo)
	if err != nil {
		return types.Inode{}, err
	}
	if !ok {
		return types.Inode{}, types.NewError("paffs.resolve", types.KindBug, nil)
	}
	for _, seg := range splitPath(path) {
		if cur.Type != types.InodeTypeDir {
			return types.Inode{}, types.NewError("paffs.resolve", types.KindInvalidInput, nil)
		}
		entries, err := fs.readDirEntries(cur)
		if err != nil {
			return types.Inode{}, err
		}
		e, ok := dirent.Find(entries, seg)
		if !ok {
			return types.Inode{}, types.ErrNotFound
		}
		cur, ok, err = fs.dev.Tree().GetInode(e.InodeNo)
		if err != nil {
			return types.Inode{}, err
		}
		if !ok {
			return types.Inode{}, types.NewError("paffs.resolve", types.KindBug, nil)
		}
	}
	return cur, nil
}

// resolveParent resolves path's containing directory and returns it
// along with the final path segment.
func (fs *FileSystem) resolveParent(path string) (types.Inode, string, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return types.Inode{}, "", types.NewError("paffs.resolveParent", types.KindInvalidInput, nil)
	}
	parent, err := fs.resolve("/" + strings.Join(segs[:len(segs)-1], "/"))
	if err != nil {
		return types.Inode{}, "", err
	}
	if parent.Type != types.InodeTypeDir {
		return types.Inode{}, "", types.NewError("paffs.resolveParent", types.KindInvalidInput, nil)
	}
	return parent, segs[len(segs)-1], nil
}

func (fs *FileSystem) nextInodeNo() (types.InodeNo, error) {
	no, err := fs.dev.Tree().FindFirstFreeNo()
	if err != nil {
		return 0, err
	}
	if uint32(no) > fs.dev.Param().MaxNumberOfInodes {
		return 0, types.NewError("paffs.nextInodeNo", types.KindNoSpace, nil)
	}
	return no, nil
}

func (fs *FileSystem) createChild(path string, t types.InodeType, perm uint8) (types.Inode, error) {
	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return types.Inode{}, err
	}
	if len(name) > dirent.MaxNameLen {
		return types.Inode{}, types.ErrNameTooLong
	}
	entries, err := fs.readDirEntries(parent)
	if err != nil {
		return types.Inode{}, err
	}
	if _, exists := dirent.Find(entries, name); exists {
		return types.Inode{}, types.ErrAlreadyExists
	}
	no, err := fs.nextInodeNo()
	if err != nil {
		return types.Inode{}, err
	}
	now := time.Now()
	child := types.Inode{No: no, Type: t, Perm: perm, Created: now, Modified: now}
	if err := fs.dev.Tree().InsertInode(child); err != nil {
		return types.Inode{}, err
	}
	entries = append(entries, dirent.Entry{InodeNo: no, Name: name})
	if err := fs.writeDirEntries(&parent, entries); err != nil {
		return types.Inode{}, err
	}
	return child, nil
}

// MkDir creates an empty directory at path; its parent must already
// exist.
func (fs *FileSystem) MkDir(path string) error {
	_, err := fs.createChild(path, types.InodeTypeDir, 0o755)
	return err
}

// Touch creates an empty file at path; it is an error if path already
// exists.
func (fs *FileSystem) Touch(path string) error {
	_, err := fs.createChild(path, types.InodeTypeFile, 0o644)
	return err
}

// GetObjInfo returns the metadata of the object at path.
func (fs *FileSystem) GetObjInfo(path string) (ObjInfo, error) {
	inode, err := fs.resolve(path)
	if err != nil {
		return ObjInfo{}, err
	}
	segs := splitPath(path)
	name := "/"
	if len(segs) > 0 {
		name = segs[len(segs)-1]
	}
	return ObjInfo{
		No:       inode.No,
		Name:     name,
		Type:     inode.Type,
		Size:     inode.Size,
		Perm:     inode.Perm,
		Created:  inode.Created,
		Modified: inode.Modified,
	}, nil
}

// Chmod sets path's 3-bit permission mask.
func (fs *FileSystem) Chmod(path string, perm uint8) error {
	inode, err := fs.resolve(path)
	if err != nil {
		return err
	}
	inode.Perm = perm & 0x7
	return fs.dev.Tree().UpdateInode(inode)
}

// Remove deletes the file or empty directory at path.
func (fs *FileSystem) Remove(path string) error {
	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	entries, err := fs.readDirEntries(parent)
	if err != nil {
		return err
	}
	e, ok := dirent.Find(entries, name)
	if !ok {
		return types.ErrNotFound
	}
	victim, ok, err := fs.dev.Tree().GetInode(e.InodeNo)
	if err != nil {
		return err
	}
	if !ok {
		return types.NewError("paffs.Remove", types.KindBug, nil)
	}
	if victim.Type == types.InodeTypeDir {
		children, err := fs.readDirEntries(victim)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return types.ErrDirectoryNotEmpty
		}
	}
	if err := fs.dev.DataIO().Truncate(&victim, 0); err != nil {
		return err
	}
	if err := fs.dev.Tree().DeleteInode(e.InodeNo); err != nil {
		return err
	}
	return fs.writeDirEntries(&parent, dirent.Remove(entries, name))
}

// File is an open handle with its own read/write cursor.
type File struct {
	fs     *FileSystem
	inode  types.Inode
	offset uint64
}

// Open opens path, creating it as an empty file first if create is true
// and it doesn't already exist.
func (fs *FileSystem) Open(path string, create bool) (*File, error) {
	inode, err := fs.resolve(path)
	if err != nil {
		if !create || !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		inode, err = fs.createChild(path, types.InodeTypeFile, 0o644)
		if err != nil {
			return nil, err
		}
	}
	if inode.Type != types.InodeTypeFile {
		return nil, types.NewError("paffs.Open", types.KindInvalidInput, nil)
	}
	return &File{fs: fs, inode: inode}, nil
}

// Write writes buf at the file's current offset, advancing it.
func (f *File) Write(buf []byte) error {
	if err := f.fs.dev.DataIO().WriteInodeData(&f.inode, f.offset, buf); err != nil {
		return err
	}
	f.offset += uint64(len(buf))
	return nil
}

// Read fills buf from the file's current offset, advancing it, and
// returns the number of bytes actually read.
func (f *File) Read(buf []byte) (int, error) {
	n, err := f.fs.dev.DataIO().ReadInodeData(&f.inode, f.offset, buf)
	f.offset += uint64(n)
	return n, err
}

// Seek repositions the file's cursor per io.Seek{Start,Current,End}.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(f.offset)
	case io.SeekEnd:
		base = int64(f.inode.Size)
	default:
		return 0, types.NewError("paffs.Seek", types.KindInvalidInput, nil)
	}
	newOff := base + offset
	if newOff < 0 {
		return 0, types.NewError("paffs.Seek", types.KindInvalidInput, nil)
	}
	f.offset = uint64(newOff)
	return newOff, nil
}

// Truncate grows or shrinks the file to size.
func (f *File) Truncate(size uint64) error {
	return f.fs.dev.DataIO().Truncate(&f.inode, size)
}

// Close is a no-op: every Write/Truncate already persists through the
// tree as it happens. It exists for symmetry with spec.md's close op.
func (f *File) Close() error { return nil }

// Dir is an open directory iterator.
type Dir struct {
	entries []dirent.Entry
	pos     int
}

// OpenDir opens path for iteration via ReadDir.
func (fs *FileSystem) OpenDir(path string) (*Dir, error) {
	inode, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	if inode.Type != types.InodeTypeDir {
		return nil, types.NewError("paffs.OpenDir", types.KindInvalidInput, nil)
	}
	entries, err := fs.readDirEntries(inode)
	if err != nil {
		return nil, err
	}
	return &Dir{entries: entries}, nil
}

// ReadDir returns the next entry's name and inode number, or ok=false
// once every entry has been returned.
func (d *Dir) ReadDir() (name string, no types.InodeNo, ok bool) {
	if d.pos >= len(d.entries) {
		return "", 0, false
	}
	e := d.entries[d.pos]
	d.pos++
	return e.Name, e.InodeNo, true
}

// CloseDir is a no-op; Dir holds no resources beyond its entry slice.
func (d *Dir) CloseDir() error { return nil }
