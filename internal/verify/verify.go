// Package verify runs the full 1:1 comparison of a sample against a
// template and reports a tagged Outcome instead of failing.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log"
	"runtime"
	"time"

	"github.com/patrickmn/go-cache"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/high-horse/fingerprint-server/internal/decision"
	"github.com/high-horse/fingerprint-server/internal/features"
	"github.com/high-horse/fingerprint-server/internal/geometry"
	"github.com/high-horse/fingerprint-server/internal/imaging"
	"github.com/high-horse/fingerprint-server/internal/matcher"
	"github.com/high-horse/fingerprint-server/internal/preprocess"
	"github.com/high-horse/fingerprint-server/internal/scoring"
)

const (
	TagSample   = "sample"
	TagTemplate = "template"
)

// TemplateStore persists encoded prepared templates keyed by the hex
// SHA-256 of the template payload. Load reports a missing entry with any
// error.
type TemplateStore interface {
	LoadFeatures(digest string) ([]byte, error)
	SaveFeatures(digest string, data []byte) error
}

// Observer is told about every finished verification.
type Observer interface {
	Observe(Outcome)
}

type Options struct {
	// Workers bounds concurrent verifications; <= 0 means runtime.NumCPU().
	Workers int
	Matcher matcher.Options
	RANSAC  geometry.RANSACOptions
	// CacheTTL keeps prepared templates keyed by content hash; 0 disables
	// the cache.
	CacheTTL time.Duration
	// Templates persists prepared templates across restarts; nil keeps
	// them in memory only.
	Templates TemplateStore
	Sink      preprocess.Sink
	Observer  Observer
	// Quiet suppresses the per-comparison log line.
	Quiet bool
}

func DefaultOptions() Options {
	return Options{
		Workers:  runtime.NumCPU(),
		Matcher:  matcher.DefaultOptions(),
		RANSAC:   geometry.DefaultRANSACOptions(),
		CacheTTL: 10 * time.Minute,
	}
}

type Verifier struct {
	pre      *preprocess.Preprocessor
	ext      *features.Extractor
	match    *matcher.Matcher
	geo      *geometry.Verifier
	agg      *scoring.Aggregator
	sem      *semaphore.Weighted
	cache    *cache.Cache
	store    TemplateStore
	observer Observer
	quiet    bool
}

func New(opts Options) *Verifier {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	v := &Verifier{
		pre:      preprocess.New(preprocess.WithSink(opts.Sink)),
		ext:      features.NewExtractor(),
		match:    matcher.New(opts.Matcher),
		geo:      geometry.NewVerifier(opts.RANSAC),
		agg:      scoring.NewAggregator(),
		sem:      semaphore.NewWeighted(int64(opts.Workers)),
		store:    opts.Templates,
		observer: opts.Observer,
		quiet:    opts.Quiet,
	}
	if opts.CacheTTL > 0 {
		v.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return v
}

// source yields a prepared image and whether it was prepared earlier.
type source func(ctx context.Context, tag string) (features.Template, bool, error)

// VerifyBytes decodes both payloads and compares them. Prepared templates
// are reused by content, from memory or from the TemplateStore.
func (v *Verifier) VerifyBytes(ctx context.Context, sample, template []byte) Outcome {
	key := ""
	if (v.cache != nil || v.store != nil) && len(template) > 0 {
		sum := sha256.Sum256(template)
		key = hex.EncodeToString(sum[:])
	}
	return v.run(ctx, v.fromBytes(sample, ""), v.fromBytes(template, key))
}

// VerifyImages compares two decoded images.
func (v *Verifier) VerifyImages(ctx context.Context, sample, template image.Image) Outcome {
	return v.run(ctx, v.fromImage(sample), v.fromImage(template))
}

// VerifyMats compares two gocv matrices, which are only read.
func (v *Verifier) VerifyMats(ctx context.Context, sample, template gocv.Mat) Outcome {
	return v.run(ctx, v.fromMat(sample), v.fromMat(template))
}

func (v *Verifier) fromBytes(data []byte, key string) source {
	return func(ctx context.Context, tag string) (features.Template, bool, error) {
		if key != "" {
			if t, ok := v.reuse(key); ok {
				return t, true, nil
			}
		}
		img, _, err := imaging.Decode(data)
		if err != nil {
			return features.Template{}, false, newError(KindDecode, "decode "+tag, err)
		}
		t, _, err := v.fromImage(img)(ctx, tag)
		if err == nil && key != "" {
			v.keep(key, t)
		}
		return t, false, err
	}
}

// reuse looks a prepared template up in memory, then in the store.
func (v *Verifier) reuse(key string) (features.Template, bool) {
	if v.cache != nil {
		if t, ok := v.cache.Get(key); ok {
			return t.(features.Template), true
		}
	}
	if v.store == nil {
		return features.Template{}, false
	}
	data, err := v.store.LoadFeatures(key)
	if err != nil {
		return features.Template{}, false
	}
	t, err := features.Unmarshal(data)
	if err != nil {
		log.Printf("stored template %s: %v", key, err)
		return features.Template{}, false
	}
	if v.cache != nil {
		v.cache.SetDefault(key, t)
	}
	return t, true
}

func (v *Verifier) keep(key string, t features.Template) {
	if v.cache != nil {
		v.cache.SetDefault(key, t)
	}
	if v.store == nil {
		return
	}
	data, err := features.Marshal(t)
	if err == nil {
		err = v.store.SaveFeatures(key, data)
	}
	if err != nil {
		log.Printf("save template %s: %v", key, err)
	}
}

func (v *Verifier) fromImage(img image.Image) source {
	return func(ctx context.Context, tag string) (features.Template, bool, error) {
		if img == nil {
			return features.Template{}, false, newError(KindDecode, "decode "+tag, imaging.ErrEmptyPayload)
		}
		m, err := imaging.ToMat(img)
		if err != nil {
			return features.Template{}, false, newError(KindDecode, "decode "+tag, err)
		}
		defer m.Close()
		return v.fromMat(m)(ctx, tag)
	}
}

func (v *Verifier) fromMat(m gocv.Mat) source {
	return func(ctx context.Context, tag string) (features.Template, bool, error) {
		img, err := v.pre.Process(m, snapshotTag(ctx, tag))
		if err != nil {
			return features.Template{}, false, newError(KindPreprocess, "preprocess "+tag, err)
		}
		fs, err := v.ext.Extract(img)
		if err != nil {
			kind := KindInternal
			if errors.Is(err, features.ErrNoFeatures) {
				kind = KindInsufficientFeatures
			}
			return features.Template{}, false, newError(kind, "extract "+tag, err)
		}
		return features.Template{Skeleton: img, Features: fs}, false, nil
	}
}

func (v *Verifier) run(ctx context.Context, sample, template source) (out Outcome) {
	start := time.Now()
	defer func() {
		out.Stats.Total = time.Since(start)
		if v.observer != nil {
			v.observer.Observe(out)
		}
	}()

	if err := v.sem.Acquire(ctx, 1); err != nil {
		return failed(newError(KindInternal, "acquire worker", err), Stats{})
	}
	defer v.sem.Release(1)

	var (
		stats      Stats
		ps, pt     features.Template
		errS, errT error
		g          errgroup.Group
	)
	prepStart := time.Now()
	g.Go(func() error {
		errS = safely("prepare "+TagSample, func() (err error) {
			if err := ctx.Err(); err != nil {
				return newError(KindInternal, "prepare "+TagSample, err)
			}
			ps, _, err = sample(ctx, TagSample)
			return err
		})
		return errS
	})
	g.Go(func() error {
		errT = safely("prepare "+TagTemplate, func() (err error) {
			if err := ctx.Err(); err != nil {
				return newError(KindInternal, "prepare "+TagTemplate, err)
			}
			pt, stats.TemplateCached, err = template(ctx, TagTemplate)
			return err
		})
		return errT
	})
	g.Wait()
	stats.Prepare = time.Since(prepStart)
	stats.KeypointsSample = ps.Features.Len()
	stats.KeypointsTemplate = pt.Features.Len()
	// A failing sample is reported ahead of a failing template.
	for _, err := range []error{errS, errT} {
		if err != nil {
			return failed(newError(KindInternal, "prepare", err), stats)
		}
	}

	err := safely("compare", func() error {
		var cerr error
		out, cerr = v.compare(ps, pt, stats)
		return cerr
	})
	if err != nil {
		return failed(newError(KindInternal, "compare", err), stats)
	}
	if !v.quiet {
		logOutcome(RequestID(ctx), out)
	}
	return out
}

func (v *Verifier) compare(a, b features.Template, stats Stats) (Outcome, error) {
	if err := features.Compatible(a.Features, b.Features); err != nil {
		return Outcome{}, newError(KindInternal, "match", err)
	}

	t := time.Now()
	raw, ratio := v.match.MatchWithRatio(a.Features.Descriptors, b.Features.Descriptors)
	stats.Match = time.Since(t)
	stats.RawMatches = len(raw)
	stats.Ratio = ratio

	t = time.Now()
	kept, fit := v.geo.Verify(raw, a.Features.Keypoints, b.Features.Keypoints)
	stats.Geometry = time.Since(t)
	stats.VerifiedMatches = len(kept)
	stats.Inliers = fit.InlierCount()

	t = time.Now()
	sub := v.agg.Score(scoring.Pair{
		KeypointsA:      a.Features.Keypoints,
		KeypointsB:      b.Features.Keypoints,
		Correspondences: kept,
		ImageA:          a.Skeleton,
		ImageB:          b.Skeleton,
	})
	stats.Score = time.Since(t)

	return Outcome{
		Result:    decision.Decide(scoring.Composite(sub)),
		SubScores: sub,
		Stats:     stats,
	}, nil
}

// safely runs fn, turning a panic into an internal error.
func safely(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindInternal, Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}

func logOutcome(requestID string, o Outcome) {
	s, r := o.SubScores, o.Result
	if requestID == "" {
		requestID = "-"
	}
	log.Printf("match %s: keypoints %d/%d, matches %d raw %d verified (ratio %.2f), "+
		"quantity %.2f%% quality %.2f%% distribution %.2f%% pattern %.2f%% local %.2f%% minutiae %.2f%%, "+
		"score %.2f threshold %.0f match %v confidence %s",
		requestID, o.Stats.KeypointsSample, o.Stats.KeypointsTemplate,
		o.Stats.RawMatches, o.Stats.VerifiedMatches, o.Stats.Ratio,
		s.Quantity, s.Quality, s.Distribution, s.Pattern, s.LocalSimilarity, s.Minutiae,
		r.Score, r.Threshold, r.Match, r.Confidence)
}
