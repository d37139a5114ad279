package media

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// AssetClass is the kind of output an encode task produced, derived from the
// extensions of its files.
type AssetClass int

const (
	SingleBitrate AssetClass = iota
	MultiBitrate
	AdaptiveStream
)

func (c AssetClass) String() string {
	switch c {
	case MultiBitrate:
		return "MultiBitrate"
	case AdaptiveStream:
		return "AdaptiveStream"
	default:
		return "SingleBitrate"
	}
}

// ClassifyAsset returns AdaptiveStream when any file is a smooth streaming
// fragment (.ismv), MultiBitrate when any file is a manifest (.ism, .ismc)
// and SingleBitrate otherwise.
func ClassifyAsset(files []string) AssetClass {
	class := SingleBitrate
	for _, f := range files {
		switch fileExt(f) {
		case ".ismv":
			return AdaptiveStream
		case ".ism", ".ismc":
			class = MultiBitrate
		}
	}
	return class
}

// Variant names the locator kind a published URL goes through.
type Variant string

const (
	VariantSAS Variant = "SAS"
	VariantODO Variant = "ODO"
)

// PublishedOutput is one URL produced for a media record.
type PublishedOutput struct {
	Key          RecordKey
	AssetID      string
	Class        AssetClass
	Variant      Variant
	URL          string
	ThumbnailURL string
}

type extSet map[string]bool

func (s extSet) excludes(file string) bool {
	return s[fileExt(file)]
}

var (
	baseExcluded       = extSet{".xml": true}
	multiSASExcluded   = extSet{".xml": true, ".ism": true, ".ismc": true, ".ismv": true}
	multiODOExcluded   = extSet{".xml": true, ".ismc": true, ".ismv": true, ".mp4": true}
	adaptiveODOExclude = extSet{".xml": true, ".ismc": true, ".ismv": true}
)

func fileExt(name string) string {
	return strings.ToLower(path.Ext(name))
}

// fileURL builds the URL of the last file not excluded. Manifests are
// addressed through the origin's "/manifest" path. The locator's query
// string is preserved.
func fileURL(locatorPath string, files []string, exclude extSet) (string, error) {
	var chosen string
	for _, f := range files {
		if !exclude.excludes(f) {
			chosen = f
		}
	}
	if chosen == "" {
		return "", nil
	}

	u, err := url.Parse(locatorPath)
	if err != nil {
		return "", fmt.Errorf("parse locator path: %w", err)
	}
	p := strings.TrimSuffix(u.Path, "/") + "/" + chosen
	if fileExt(chosen) == ".ism" {
		p += "/manifest"
	}
	u.Path = p
	u.RawPath = ""
	return u.String(), nil
}

// outputLocators creates read locators for one output asset on demand and
// remembers the files behind them.
type outputLocators struct {
	gw     Publisher
	asset  OutputAsset
	policy AccessPolicy
	locs   map[LocatorKind]Locator
	files  []string
}

func newOutputLocators(gw Publisher, asset OutputAsset, policy AccessPolicy) *outputLocators {
	return &outputLocators{
		gw:     gw,
		asset:  asset,
		policy: policy,
		locs:   map[LocatorKind]Locator{},
		files:  asset.Files,
	}
}

func (l *outputLocators) locator(ctx context.Context, kind LocatorKind) (Locator, error) {
	if loc, ok := l.locs[kind]; ok {
		return loc, nil
	}
	loc, err := l.gw.CreateReadLocator(ctx, l.asset, kind, l.policy)
	if err != nil {
		return Locator{}, gatewayError(fmt.Sprintf("create %s locator", kind), err)
	}
	l.locs[kind] = loc
	return loc, nil
}

// assetFiles returns the registered files, listing the container when the
// service reported none.
func (l *outputLocators) assetFiles(ctx context.Context) ([]string, error) {
	if len(l.files) > 0 {
		return l.files, nil
	}
	loc, err := l.locator(ctx, LocatorSAS)
	if err != nil {
		return nil, err
	}
	files, err := l.gw.ListLocatorFiles(ctx, loc)
	if err != nil {
		return nil, gatewayError("list locator files", err)
	}
	l.files = files
	return files, nil
}

func (l *outputLocators) url(ctx context.Context, kind LocatorKind, exclude extSet) (string, error) {
	files, err := l.assetFiles(ctx)
	if err != nil {
		return "", err
	}
	loc, err := l.locator(ctx, kind)
	if err != nil {
		return "", err
	}
	return fileURL(loc.Path, files, exclude)
}

// Publish creates read locators for the outputs of the unit's finished job
// and returns one PublishedOutput per URL. Only outputs of tasks published
// for a record are returned; the thumbnail output supplies ThumbnailURL.
func (u *JobUnit) Publish(ctx context.Context, expiration time.Duration) ([]PublishedOutput, error) {
	if !u.Completed() {
		return nil, ErrInvalidState
	}

	outputs, err := u.gw.JobOutputs(ctx, u.job)
	if err != nil {
		return nil, gatewayError("list job outputs", err)
	}

	policy := AccessPolicy{Start: time.Now().Add(-locatorClockSkew), Duration: expiration}

	thumb := -1
	for i, out := range outputs {
		if u.thumbnailTask != "" && out.TaskID == u.thumbnailTask {
			thumb = i
			break
		}
	}
	if thumb < 0 {
		for i, out := range outputs {
			if strings.Contains(out.Name, ThumbnailConfiguration) {
				thumb = i
				break
			}
		}
	}

	// The thumbnail link is filtered with the same list as the link it
	// accompanies.
	var thumbLocs *outputLocators
	if thumb >= 0 {
		thumbLocs = newOutputLocators(u.gw, outputs[thumb], policy)
	}

	var published []PublishedOutput
	for i, out := range outputs {
		if i == thumb {
			continue
		}
		key, ok := u.published[out.TaskID]
		if !ok {
			continue
		}

		locs := newOutputLocators(u.gw, out, policy)
		files, err := locs.assetFiles(ctx)
		if err != nil {
			return nil, err
		}

		class := ClassifyAsset(files)
		add := func(kind LocatorKind, variant Variant, exclude extSet) error {
			link, err := locs.url(ctx, kind, exclude)
			if err != nil {
				return err
			}
			var thumbnailURL string
			if thumbLocs != nil {
				if thumbnailURL, err = thumbLocs.url(ctx, LocatorSAS, exclude); err != nil {
					return err
				}
			}
			published = append(published, PublishedOutput{
				Key:          key,
				AssetID:      out.ID,
				Class:        class,
				Variant:      variant,
				URL:          link,
				ThumbnailURL: thumbnailURL,
			})
			return nil
		}

		switch class {
		case SingleBitrate:
			err = add(LocatorSAS, VariantSAS, baseExcluded)
		case MultiBitrate:
			if err = add(LocatorSAS, VariantSAS, multiSASExcluded); err == nil {
				err = add(LocatorOnDemandOrigin, VariantODO, multiODOExcluded)
			}
		case AdaptiveStream:
			err = add(LocatorOnDemandOrigin, VariantODO, adaptiveODOExclude)
		}
		if err != nil {
			return nil, err
		}
	}

	u.log.Info("job outputs published", "job_id", u.job.ID, "outputs", len(published))
	return published, nil
}
