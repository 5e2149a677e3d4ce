package ftppeer

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	libftp "github.com/jlaffaye/ftp"

	"github.com/squidcore/proxy/internal/errs"
)

func (f *peer) getConfig() *Config {
	f.m.Lock()
	defer f.m.Unlock()

	if f.cfg == nil {
		return nil
	} else if i := f.cfg.Load(); i == nil {
		return nil
	} else if o, ok := i.(*Config); !ok {
		return nil
	} else {
		return o
	}
}

func (f *peer) setConfig(cfg *Config) {
	f.m.Lock()
	defer f.m.Unlock()

	if f.cfg == nil {
		f.cfg = new(atomic.Value)
	}

	f.cfg.Store(cfg)
}

func (f *peer) getClient() *libftp.ServerConn {
	f.m.Lock()
	defer f.m.Unlock()

	if f.cli == nil {
		return nil
	} else if i := f.cli.Load(); i == nil {
		return nil
	} else if o, ok := i.(*libftp.ServerConn); !ok {
		return nil
	} else {
		return o
	}
}

func (f *peer) setClient(cli *libftp.ServerConn) {
	f.m.Lock()
	defer f.m.Unlock()

	f.cli.Store(cli)
}

func (f *peer) Connect() errs.Error {
	var (
		e   error
		err errs.Error
		cfg *Config
		cli *libftp.ServerConn
	)

	if cli = f.getClient(); cli != nil {
		if e = cli.NoOp(); e != nil {
			_ = cli.Quit()
		} else {
			return nil
		}
	}

	if cfg = f.getConfig(); cfg == nil {
		return ErrNotInitialized.Error(nil)
	}

	if cli, err = cfg.New(); err != nil {
		return err
	}

	if e = cli.NoOp(); e != nil {
		return ErrCheck.ErrorParent(e)
	}

	f.setClient(cli)
	return nil
}

func (f *peer) Check() errs.Error {
	var cli *libftp.ServerConn

	if cli = f.getClient(); cli == nil {
		if err := f.Connect(); err != nil {
			return err
		}
	}

	if cli = f.getClient(); cli == nil {
		return ErrNotInitialized.Error(nil)
	}

	if e := cli.NoOp(); e != nil {
		return ErrCheck.ErrorParent(e)
	}
	return nil
}

func (f *peer) Close() {
	if cli := f.getClient(); cli != nil {
		_ = cli.Quit()
	}
}

func (f *peer) NameList(path string) ([]string, errs.Error) {
	if err := f.Check(); err != nil {
		return nil, err
	}

	if r, e := f.getClient().NameList(path); e != nil {
		return nil, ErrCommand.ErrorParent(e, cmdErr("NameList", "NLST"))
	} else {
		return r, nil
	}
}

func (f *peer) List(path string) ([]*libftp.Entry, errs.Error) {
	if err := f.Check(); err != nil {
		return nil, err
	}

	if r, e := f.getClient().List(path); e != nil {
		return nil, ErrCommand.ErrorParent(e, cmdErr("List", "MLSD/LIST"))
	} else {
		return r, nil
	}
}

func (f *peer) ChangeDir(path string) errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().ChangeDir(path); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("ChangeDir", "CWD"))
	} else {
		return nil
	}
}

func (f *peer) ChangeDirToParent() errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().ChangeDirToParent(); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("ChangeDirToParent", "CDUP"))
	} else {
		return nil
	}
}

func (f *peer) CurrentDir() (string, errs.Error) {
	if err := f.Check(); err != nil {
		return "", err
	}

	if r, e := f.getClient().CurrentDir(); e != nil {
		return "", ErrCommand.ErrorParent(e, cmdErr("CurrentDir", "PWD"))
	} else {
		return r, nil
	}
}

func (f *peer) FileSize(path string) (int64, errs.Error) {
	if err := f.Check(); err != nil {
		return 0, err
	}

	if r, e := f.getClient().FileSize(path); e != nil {
		return 0, ErrCommand.ErrorParent(e, cmdErr("FileSize", "SIZE"))
	} else {
		return r, nil
	}
}

func (f *peer) GetTime(path string) (time.Time, errs.Error) {
	if err := f.Check(); err != nil {
		return time.Time{}, err
	}

	if r, e := f.getClient().GetTime(path); e != nil {
		return time.Time{}, ErrCommand.ErrorParent(e, cmdErr("GetTime", "MDTM"))
	} else {
		return r, nil
	}
}

func (f *peer) SetTime(path string, t time.Time) errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().SetTime(path, t); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("SetTime", "MFMT/MDTM"))
	} else {
		return nil
	}
}

func (f *peer) Retr(path string) (*libftp.Response, errs.Error) {
	if err := f.Check(); err != nil {
		return nil, err
	}

	if r, e := f.getClient().Retr(path); e != nil {
		return nil, ErrCommand.ErrorParent(e, cmdErr("Retr", "RETR"))
	} else {
		return r, nil
	}
}

func (f *peer) RetrFrom(path string, offset uint64) (*libftp.Response, errs.Error) {
	if err := f.Check(); err != nil {
		return nil, err
	}

	if r, e := f.getClient().RetrFrom(path, offset); e != nil {
		return nil, ErrCommand.ErrorParent(e, cmdErr("RetrFrom", "REST/RETR"))
	} else {
		return r, nil
	}
}

func (f *peer) Stor(path string, r io.Reader) errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().Stor(path, r); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("Stor", "STOR"))
	} else {
		return nil
	}
}

func (f *peer) Append(path string, r io.Reader) errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().Append(path, r); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("Append", "APPE"))
	} else {
		return nil
	}
}

func (f *peer) Rename(from, to string) errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().Rename(from, to); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("Rename", "RNFR/RNTO"))
	} else {
		return nil
	}
}

func (f *peer) Delete(path string) errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().Delete(path); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("Delete", "DELE"))
	} else {
		return nil
	}
}

func (f *peer) MakeDir(path string) errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().MakeDir(path); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("MakeDir", "MKD"))
	} else {
		return nil
	}
}

func (f *peer) RemoveDir(path string) errs.Error {
	if err := f.Check(); err != nil {
		return err
	}

	if e := f.getClient().RemoveDir(path); e != nil {
		return ErrCommand.ErrorParent(e, cmdErr("RemoveDir", "RMD"))
	} else {
		return nil
	}
}

// Features lists the verbs the upstream is known to honor. jlaffaye/ftp
// keeps the raw FEAT response private, so this reports the capability set
// it negotiates plus what the configuration implies.
func (f *peer) Features() []string {
	feats := []string{"SIZE", "MDTM", "REST STREAM", "PASV"}
	cfg := f.getConfig()
	if cfg == nil {
		return feats
	}
	if !cfg.DisableEPSV {
		feats = append(feats, "EPSV")
	}
	if !cfg.DisableMLSD {
		feats = append(feats, "MLSD")
	}
	if cli := f.getClient(); cli != nil && cli.IsSetTimeSupported() {
		feats = append(feats, "MFMT")
	}
	return feats
}

func cmdErr(name, verb string) error {
	return fmt.Errorf("command : %s = %s", name, verb)
}
