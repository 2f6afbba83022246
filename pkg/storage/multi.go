package storage

import "errors"

// MultiSink saves to every sink in order. A record counts as written if any
// sink wrote it. Errors from all sinks are joined.
type MultiSink struct {
	sinks []ResultSink
}

// NewMultiSink fans out to sinks. Nil entries are skipped.
func NewMultiSink(sinks ...ResultSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Save(rec Record) (bool, error) {
	written := false
	var errs []error
	for _, s := range m.sinks {
		ok, err := s.Save(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		written = written || ok
	}
	return written, errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
