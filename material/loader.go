package material

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Luzifer/vrf-extract/assets"
	"github.com/Luzifer/vrf-extract/ntro"
	"github.com/Luzifer/vrf-extract/vrf"
	"github.com/Luzifer/vrf-extract/vtex"
)

// Suffix of compiled resource files
const compiledSuffix = "_c"

// Texture keys filled with placeholders for materials which could not be
// found
const (
	KeyColor  = "g_tColor"
	KeyNormal = "g_tNormal"
)

var (
	errorColor = color.NRGBA{R: 173, G: 255, B: 47, A: 255}

	colorKeyAliases = map[string]string{
		"g_tColor1": KeyColor,
		"g_tColor2": KeyColor,
	}
)

type (
	// Texture is a decoded texture. Placeholder textures have no header.
	Texture struct {
		Name        string
		Header      *vtex.Header
		Image       image.Image
		Placeholder bool
	}

	// Loader loads materials and textures through a resolver and caches
	// them by name. It is safe for concurrent use.
	Loader struct {
		resolver    assets.Resolver
		aliasColors bool
		log         logrus.FieldLogger

		lock      sync.RWMutex
		materials map[string]*materialEntry
		textures  map[string]*textureEntry
	}

	// Option configures a Loader
	Option func(*Loader)

	materialEntry struct {
		material *Material
		err      error
	}

	textureEntry struct {
		texture *Texture
		err     error
	}
)

// WithColorKeyAliasing stores textures of the numbered color keys
// g_tColor1 and g_tColor2 under g_tColor. An existing key is never
// overwritten.
func WithColorKeyAliasing() Option {
	return func(l *Loader) { l.aliasColors = true }
}

// WithLogger sets the logger used for diagnostics
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loader) { l.log = log }
}

// NewLoader creates a loader resolving assets through r
func NewLoader(r assets.Resolver, opts ...Option) *Loader {
	l := &Loader{
		resolver:  r,
		log:       logrus.StandardLogger(),
		materials: map[string]*materialEntry{},
		textures:  map[string]*textureEntry{},
	}

	for _, o := range opts {
		o(l)
	}

	return l
}

// ErrorTexture returns a new 1x1 placeholder texture
func ErrorTexture(name string) *Texture {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, errorColor)

	return &Texture{Name: name, Image: img, Placeholder: true}
}

func (l *Loader) open(name string) (*vrf.Resource, error) {
	data, err := l.resolver.Resolve(name + compiledSuffix)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}

	res, err := vrf.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	return res, nil
}

// Material loads the named material. A material which cannot be resolved
// yields an error wrapping vrf.ErrAssetNotFound.
func (l *Loader) Material(name string) (*Material, error) {
	l.lock.RLock()
	e, ok := l.materials[name]
	l.lock.RUnlock()
	if ok {
		return e.material, e.err
	}

	e = &materialEntry{}
	e.material, e.err = l.loadMaterial(name)

	l.lock.Lock()
	defer l.lock.Unlock()
	if existing, ok := l.materials[name]; ok {
		return existing.material, existing.err
	}
	l.materials[name] = e

	return e.material, e.err
}

func (l *Loader) loadMaterial(name string) (*Material, error) {
	l.log.WithField("material", name).Debug("loading material")

	res, err := l.open(name)
	if err != nil {
		return nil, err
	}

	record, err := ntro.Decode(res)
	if err != nil {
		return nil, fmt.Errorf("decoding record of %s: %w", name, err)
	}

	m, err := FromStruct(record)
	if err != nil {
		return nil, fmt.Errorf("reading material %s: %w", name, err)
	}

	return m, nil
}

// Texture loads the named texture. A texture which cannot be resolved
// yields an error wrapping vrf.ErrAssetNotFound.
func (l *Loader) Texture(name string) (*Texture, error) {
	l.lock.RLock()
	e, ok := l.textures[name]
	l.lock.RUnlock()
	if ok {
		return e.texture, e.err
	}

	e = &textureEntry{}
	e.texture, e.err = l.loadTexture(name)

	l.lock.Lock()
	defer l.lock.Unlock()
	if existing, ok := l.textures[name]; ok {
		return existing.texture, existing.err
	}
	l.textures[name] = e

	return e.texture, e.err
}

func (l *Loader) loadTexture(name string) (*Texture, error) {
	if name == "" {
		return nil, assets.NotFound("unnamed texture reference")
	}

	res, err := l.open(name)
	if err != nil {
		return nil, err
	}

	h, img, err := vtex.Decode(res)
	if err != nil {
		return nil, fmt.Errorf("decoding texture %s: %w", name, err)
	}

	l.log.WithFields(logrus.Fields{
		"texture": name,
		"format":  h.Format,
		"flags":   h.Flags,
	}).Debug("loaded texture")

	return &Texture{Name: name, Header: h, Image: img}, nil
}

// TextureOrPlaceholder loads the named texture and substitutes the error
// texture if it cannot be found or its pixel format is not supported.
// Other failures are returned.
func (l *Loader) TextureOrPlaceholder(name string) (*Texture, error) {
	tex, err := l.Texture(name)
	switch {
	case err == nil:
		return tex, nil

	case errors.Is(err, vrf.ErrAssetNotFound), errors.Is(err, vrf.ErrUnsupportedPixelFormat):
		l.log.WithError(err).WithField("texture", name).Warn("using placeholder texture")
		return ErrorTexture(name), nil

	default:
		return nil, err
	}
}

// Textures loads all textures referenced by the named material keyed by
// parameter name. A material which cannot be found yields placeholders
// for the color and normal keys.
func (l *Loader) Textures(name string) (map[string]*Texture, error) {
	m, err := l.Material(name)
	if err != nil {
		if !errors.Is(err, vrf.ErrAssetNotFound) {
			return nil, err
		}

		l.log.WithError(err).WithField("material", name).Warn("using placeholder textures")
		return map[string]*Texture{
			KeyColor:  ErrorTexture(name),
			KeyNormal: ErrorTexture(name),
		}, nil
	}

	return l.MaterialTextures(m)
}

// MaterialTextures loads the textures referenced by m keyed by parameter
// name, applying the key aliasing policy of the loader
func (l *Loader) MaterialTextures(m *Material) (map[string]*Texture, error) {
	keys := make([]string, 0, len(m.TextureParams))
	for k := range m.TextureParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]*Texture, len(keys))
	for _, key := range keys {
		ref := m.TextureParams[key]

		tex, err := l.TextureOrPlaceholder(ref.Name)
		if err != nil {
			return nil, fmt.Errorf("loading texture %s of %s: %w", key, m.Name, err)
		}

		out[l.textureKey(m, key, out)] = tex
	}

	return out, nil
}

// textureKey returns the key to store the texture of param under
func (l *Loader) textureKey(m *Material, param string, loaded map[string]*Texture) string {
	alias, ok := colorKeyAliases[param]
	if !ok || !l.aliasColors {
		return param
	}

	logger := l.log.WithFields(logrus.Fields{
		"material": m.Name,
		"param":    param,
		"alias":    alias,
	})

	if _, taken := m.TextureParams[alias]; taken {
		logger.Warn("alias target exists in material, keeping numbered key")
		return param
	}

	if _, taken := loaded[alias]; taken {
		logger.Warn("alias target already filled, keeping numbered key")
		return param
	}

	logger.Info("storing numbered color texture under alias")
	return alias
}
