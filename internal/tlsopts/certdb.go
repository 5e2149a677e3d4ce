package tlsopts

import (
	"bufio"
	"crypto/tls"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/squidcore/proxy/internal/errs"
)

// On-disk layout of the certificate-generation cache: a textual index, a
// directory of PEM bundles named by serial, and a running byte total. All
// mutations hold an exclusive advisory lock on the index file.
const (
	dbIndexFile = "index.txt"
	dbCertDir   = "certs"
	dbSizeFile  = "size"
)

// CertDB persists generated host certificates across restarts, bounded by
// maxBytes of PEM on disk. It complements the in-memory LRU of SigningCA:
// the memory cache absorbs the hot set, the disk db survives the process.
type CertDB struct {
	dir      string
	maxBytes int64
}

// OpenCertDB creates (if needed) and opens the on-disk layout under dir.
func OpenCertDB(dir string, maxBytes int64) (*CertDB, errs.Error) {
	if err := os.MkdirAll(filepath.Join(dir, dbCertDir), 0o700); err != nil {
		return nil, ErrCertDB.ErrorParent(err)
	}
	idx := filepath.Join(dir, dbIndexFile)
	if _, err := os.Stat(idx); os.IsNotExist(err) {
		if werr := os.WriteFile(idx, nil, 0o600); werr != nil {
			return nil, ErrCertDB.ErrorParent(werr)
		}
	}
	db := &CertDB{dir: dir, maxBytes: maxBytes}
	return db, nil
}

// withLock runs fn while holding the exclusive advisory lock on index.txt.
func (db *CertDB) withLock(fn func() errs.Error) errs.Error {
	f, err := os.OpenFile(filepath.Join(db.dir, dbIndexFile), os.O_RDWR, 0o600)
	if err != nil {
		return ErrCertDB.ErrorParent(err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return ErrCertDB.ErrorParent(err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	return fn()
}

// Put stores the PEM bundle for host under the certificate's serial,
// appends the index row, and updates the size file, evicting the oldest
// entries when the byte budget is exceeded.
func (db *CertDB) Put(host, serial string, cert *tls.Certificate) errs.Error {
	var bundle []byte
	for _, der := range cert.Certificate {
		bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}

	return db.withLock(func() errs.Error {
		path := filepath.Join(db.dir, dbCertDir, serial+".pem")
		if err := os.WriteFile(path, bundle, 0o600); err != nil {
			return ErrCertDB.ErrorParent(err)
		}

		idx, err := os.OpenFile(filepath.Join(db.dir, dbIndexFile), os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return ErrCertDB.ErrorParent(err)
		}
		fmt.Fprintf(idx, "V\t%d\t%s\t%s\n", time.Now().Unix(), serial, host)
		_ = idx.Close()

		size := db.readSize() + int64(len(bundle))
		db.writeSize(size)

		for size > db.maxBytes && db.maxBytes > 0 {
			freed, derr := db.evictOldest()
			if derr != nil || freed == 0 {
				break
			}
			size -= freed
			db.writeSize(size)
		}
		return nil
	})
}

// Get loads the PEM bundle stored for host, if any.
func (db *CertDB) Get(host string) ([]byte, bool) {
	var out []byte
	err := db.withLock(func() errs.Error {
		serial, ok := db.findSerial(host)
		if !ok {
			return nil
		}
		b, rerr := os.ReadFile(filepath.Join(db.dir, dbCertDir, serial+".pem"))
		if rerr != nil {
			return nil
		}
		out = b
		return nil
	})
	return out, err == nil && out != nil
}

// Size reports the current on-disk byte total per the size file.
func (db *CertDB) Size() int64 {
	var n int64
	_ = db.withLock(func() errs.Error {
		n = db.readSize()
		return nil
	})
	return n
}

func (db *CertDB) readSize() int64 {
	b, err := os.ReadFile(filepath.Join(db.dir, dbSizeFile))
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		// invalid size file: rebuild from the certs directory
		return db.rebuildSize()
	}
	return n
}

func (db *CertDB) rebuildSize() int64 {
	var total int64
	entries, err := os.ReadDir(filepath.Join(db.dir, dbCertDir))
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	db.writeSize(total)
	return total
}

func (db *CertDB) writeSize(n int64) {
	_ = os.WriteFile(filepath.Join(db.dir, dbSizeFile), []byte(strconv.FormatInt(n, 10)+"\n"), 0o600)
}

// findSerial scans the index for the newest valid row naming host.
func (db *CertDB) findSerial(host string) (string, bool) {
	f, err := os.Open(filepath.Join(db.dir, dbIndexFile))
	if err != nil {
		return "", false
	}
	defer f.Close()

	var serial string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) == 4 && fields[0] == "V" && fields[3] == host {
			serial = fields[2]
		}
	}
	return serial, serial != ""
}

// evictOldest removes the first valid index row's bundle and rewrites the
// index without it, returning the bytes freed.
func (db *CertDB) evictOldest() (int64, errs.Error) {
	idxPath := filepath.Join(db.dir, dbIndexFile)
	b, err := os.ReadFile(idxPath)
	if err != nil {
		return 0, ErrCertDB.ErrorParent(err)
	}

	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	var freed int64
	kept := make([]string, 0, len(lines))
	evicted := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if !evicted && len(fields) == 4 && fields[0] == "V" {
			path := filepath.Join(db.dir, dbCertDir, fields[2]+".pem")
			if info, serr := os.Stat(path); serr == nil {
				freed = info.Size()
				_ = os.Remove(path)
			}
			evicted = true
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	if werr := os.WriteFile(idxPath, []byte(out), 0o600); werr != nil {
		return freed, ErrCertDB.ErrorParent(werr)
	}
	return freed, nil
}
