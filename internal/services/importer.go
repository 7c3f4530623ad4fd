package services

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/models"
)

// ImportRecord is the outcome for one record. Inserted is false for rejected records
// and for ids that already existed.
type ImportRecord struct {
	Kind     models.Kind `json:"kind"`
	ID       int64       `json:"id"`
	Inserted bool        `json:"inserted"`
	Error    string      `json:"error,omitempty"`
}

// KindTally counts inserted and failed records of one kind.
type KindTally struct {
	Success int `json:"success"`
	Errors  int `json:"errors"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Target  string                `json:"target"`
	Results map[string]*KindTally `json:"results"`
	Records []ImportRecord        `json:"records"`
}

func newImportResult(target string) ImportResult {
	res := ImportResult{Target: target, Results: make(map[string]*KindTally, len(models.Kinds)), Records: []ImportRecord{}}
	for _, kind := range models.Kinds {
		res.Results[kind.Collection()] = &KindTally{}
	}
	return res
}

func (r *ImportResult) add(rec ImportRecord) {
	r.Records = append(r.Records, rec)
	t := r.Results[rec.Kind.Collection()]
	if rec.Inserted {
		t.Success++
	} else {
		t.Errors++
	}
}

// Failed returns the number of records that were not inserted.
func (r ImportResult) Failed() int {
	var n int
	for _, t := range r.Results {
		n += t.Errors
	}
	return n
}

// Import inserts every record of src independently, skipping ids that already exist.
// A failing record never stops the others. Running it twice reports every record of
// the second run as a duplicate. A nil src imports the data file's own content, which
// is how file data is migrated into a freshly connected remote store.
func (c *Coordinator) Import(ctx context.Context, src *models.Dataset) (ImportResult, error) {
	if src == nil {
		if c.mode == config.ModeRemote {
			return ImportResult{}, apperr.New(apperr.KindInvalidInput, "no data file to import in remote mode", nil)
		}
		if !c.useRemote() {
			return ImportResult{}, apperr.New(apperr.KindUnavailable, "importing the data file needs a connected remote store", nil)
		}
		ds, err := c.file.Load()
		if err != nil {
			return ImportResult{}, err
		}
		src = &ds
	}
	src.Normalize()

	var (
		res  ImportResult
		errs *multierror.Error
	)
	switch {
	case c.useRemote():
		res, errs = c.importRemote(ctx, src)
	case c.mode == config.ModeRemote:
		return ImportResult{}, c.remoteUnavailable()
	default:
		var err error
		res, errs, err = c.importFile(src)
		if err != nil {
			c.log.Error().Err(err).Msg("data file import failed")
			return ImportResult{}, apperr.New(apperr.KindPersistenceFailure, "import not persisted", err)
		}
		for _, rec := range res.Records {
			if rec.Inserted {
				c.track(rec.Kind, rec.ID, false)
			}
		}
	}

	ev := c.log.Info()
	if errs.ErrorOrNil() != nil {
		ev = c.log.Warn().Err(errs)
	}
	ev.Str("target", res.Target).Int("records", len(res.Records)).Int("failed", res.Failed()).Msg("import finished")
	return res, nil
}

func (c *Coordinator) importRemote(ctx context.Context, src *models.Dataset) (ImportResult, *multierror.Error) {
	store := c.conn.Store()
	res := newImportResult(store.Name())
	var errs *multierror.Error
	for _, kind := range models.Kinds {
		for _, rec := range src.Records(kind) {
			out := ImportRecord{Kind: kind, ID: rec.RecordID()}
			err := models.ValidateRecord(rec, c.strict)
			if err == nil {
				out.Inserted, err = store.InsertOne(ctx, rec)
				switch {
				case err != nil:
					c.conn.ReportFailure(err)
				case !out.Inserted:
					err = duplicate(kind, rec.RecordID())
				default:
					c.forget(kind, rec.RecordID())
				}
			}
			if err != nil {
				out.Error = apperr.Detail(err)
				errs = multierror.Append(errs, fmt.Errorf("%s %d: %w", kind, rec.RecordID(), err))
			}
			res.add(out)
		}
	}
	return res, errs
}

// importFile applies the whole import in one serialized update of the data file.
func (c *Coordinator) importFile(src *models.Dataset) (ImportResult, *multierror.Error, error) {
	res := newImportResult(SourceFile)
	var errs *multierror.Error
	err := c.file.Update(func(ds *models.Dataset) error {
		for _, kind := range models.Kinds {
			for _, rec := range src.Records(kind) {
				out := ImportRecord{Kind: kind, ID: rec.RecordID()}
				err := models.ValidateRecord(rec, c.strict)
				if err == nil && ds.Contains(kind, rec.RecordID()) {
					err = duplicate(kind, rec.RecordID())
				}
				if err != nil {
					out.Error = apperr.Detail(err)
					errs = multierror.Append(errs, fmt.Errorf("%s %d: %w", kind, rec.RecordID(), err))
				} else {
					ds.Upsert(rec)
					out.Inserted = true
				}
				res.add(out)
			}
		}
		return nil
	})
	return res, errs, err
}

func duplicate(kind models.Kind, id int64) error {
	return apperr.Newf(apperr.KindInvalidInput, "%s %d already exists", kind, id)
}
