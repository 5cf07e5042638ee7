package images

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupiduntilnot/streamchat/internal/control"
	"github.com/stupiduntilnot/streamchat/internal/metrics"
	"github.com/stupiduntilnot/streamchat/internal/model"
)

// Pipeline ties the image backend, the downloader, blob storage and the
// record table together.
type Pipeline struct {
	Generator model.ImageGenerator
	Fetcher   Fetcher
	Blobs     BlobStore
	Repo      *Repo
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// Generate produces one image for prompt, stores it and returns the record
// with the image bytes.
func (p *Pipeline) Generate(ctx context.Context, prompt string) (Record, []byte, error) {
	start := time.Now()
	url, err := p.Generator.GenerateImage(ctx, prompt)
	if err != nil {
		p.Metrics.RecordImage(string(control.KindOf(err)))
		return Record{}, nil, err
	}
	p.Log.Info().Dur("latency", time.Since(start)).Msg("image generated")

	data, err := p.Fetcher.Fetch(ctx, url)
	if err != nil {
		p.Metrics.RecordImage(string(control.KindUpstream))
		return Record{}, nil, control.Upstream("images.download", err)
	}

	name, err := p.Blobs.Save(data)
	if err != nil {
		p.Metrics.RecordImage(string(control.KindStore))
		return Record{}, nil, control.Store("images.save", err)
	}
	id, err := p.Repo.Insert(ctx, prompt, name)
	if err != nil {
		if rmErr := p.Blobs.Remove(name); rmErr != nil {
			p.Log.Warn().Err(rmErr).Str("filename", name).Msg("orphan image left behind")
		}
		p.Metrics.RecordImage(string(control.KindStore))
		return Record{}, nil, err
	}
	p.Metrics.RecordImage("ok")
	return Record{ID: id, Prompt: prompt, Filename: name}, data, nil
}

// List returns all records.
func (p *Pipeline) List(ctx context.Context) ([]Record, error) {
	return p.Repo.All(ctx)
}

// Review returns a record and its bytes. The bool is false when the record
// does not exist.
func (p *Pipeline) Review(ctx context.Context, id int64) (Record, []byte, bool, error) {
	rec, ok, err := p.Repo.Get(ctx, id)
	if err != nil || !ok {
		return Record{}, nil, false, err
	}
	data, err := p.Blobs.Read(rec.Filename)
	if err != nil {
		return Record{}, nil, false, control.Store("images.read", err)
	}
	return rec, data, true, nil
}

// Delete removes a record and its file. It reports whether the record existed.
func (p *Pipeline) Delete(ctx context.Context, id int64) (bool, error) {
	rec, ok, err := p.Repo.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	deleted, err := p.Repo.Delete(ctx, id)
	if err != nil || !deleted {
		return false, err
	}
	if err := p.Blobs.Remove(rec.Filename); err != nil {
		p.Log.Warn().Err(err).Int64("image_id", id).Msg("image file not removed")
	}
	return true, nil
}
