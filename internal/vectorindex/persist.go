package vectorindex

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

const (
	IndexFile    = "vector_index.bin"
	VectorsFile  = "vectors.bin"
	TextsFile    = "texts.json"
	ManifestFile = "manifest.json"
)

type treeFile struct {
	Dimension int    `msgpack:"dimension"`
	Count     int    `msgpack:"count"`
	Tree      vpTree `msgpack:"tree"`
}

// Save writes the artifact set into a sibling temp directory and swaps it
// in place of dir, so dir holds either the previous set or the new one.
func (x *Index) Save(dir string) error {
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create index parent dir: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	if err := x.writeArtifacts(tmp); err != nil {
		return err
	}
	if err := syncDir(tmp); err != nil {
		return err
	}

	old := ""
	if _, err := os.Stat(dir); err == nil {
		old = dir + ".old-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat index dir: %w", err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			os.Rename(old, dir)
		}
		return fmt.Errorf("install index: %w", err)
	}
	committed = true

	if old != "" {
		os.RemoveAll(old)
	}
	return syncDir(parent)
}

func (x *Index) writeArtifacts(dir string) error {
	tf := treeFile{Dimension: x.manifest.Dimension, Count: len(x.entries), Tree: *x.tree}
	treeBytes, err := msgpack.Marshal(&tf)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	if err := writeFile(filepath.Join(dir, IndexFile), func(w *bufio.Writer) error {
		_, err := w.Write(treeBytes)
		return err
	}); err != nil {
		return err
	}

	dense := mat.NewDense(len(x.vectors), x.manifest.Dimension, nil)
	for i, v := range x.vectors {
		for j, f := range v {
			dense.Set(i, j, float64(f))
		}
	}
	if err := writeFile(filepath.Join(dir, VectorsFile), func(w *bufio.Writer) error {
		_, err := dense.MarshalBinaryTo(w)
		return err
	}); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, TextsFile), x.entries); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, ManifestFile), x.manifest)
}

func writeJSON(path string, v any) error {
	return writeFile(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func writeFile(path string, fill func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	// Some filesystems refuse to fsync directories; the data files are already synced.
	_ = d.Sync()
	return nil
}

// Load reads an artifact set written by Save and checks that its parts agree.
func Load(dir string) (*Index, error) {
	for _, name := range []string{ManifestFile, IndexFile, VectorsFile, TextsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, name)
			}
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
	}

	var manifest Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return nil, err
	}
	if manifest.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrSchemaVersion, manifest.SchemaVersion)
	}

	treeBytes, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IndexFile, err)
	}
	var tf treeFile
	if err := msgpack.Unmarshal(treeBytes, &tf); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInconsistent, IndexFile, err)
	}

	vf, err := os.Open(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", VectorsFile, err)
	}
	var dense mat.Dense
	_, err = dense.UnmarshalBinaryFrom(bufio.NewReader(vf))
	vf.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInconsistent, VectorsFile, err)
	}

	var entries []Entry
	if err := readJSON(filepath.Join(dir, TextsFile), &entries); err != nil {
		return nil, err
	}

	rows, cols := dense.Dims()
	n := len(entries)
	if tf.Count != n || rows != n || manifest.Count != n || len(tf.Tree.Nodes) != n {
		return nil, fmt.Errorf("%w: tree=%d vectors=%d texts=%d manifest=%d",
			ErrInconsistent, tf.Count, rows, n, manifest.Count)
	}
	if cols != manifest.Dimension || tf.Dimension != manifest.Dimension {
		return nil, fmt.Errorf("%w: dimension tree=%d vectors=%d manifest=%d",
			ErrInconsistent, tf.Dimension, cols, manifest.Dimension)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: artifact set is empty", ErrInconsistent)
	}
	tree := tf.Tree
	if !tree.validate(n) {
		return nil, fmt.Errorf("%w: malformed tree", ErrInconsistent)
	}

	vectors := make([][]float32, rows)
	for i := 0; i < rows; i++ {
		v := make([]float32, cols)
		for j := 0; j < cols; j++ {
			v[j] = float32(dense.At(i, j))
		}
		vectors[i] = v
	}

	return &Index{
		manifest: manifest,
		entries:  entries,
		vectors:  vectors,
		tree:     &tree,
	}, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInconsistent, filepath.Base(path), err)
	}
	return nil
}
