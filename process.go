package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Luzifer/go_helpers/v2/str"
	"github.com/sirupsen/logrus"

	"github.com/Luzifer/vrf-extract/material"
	"github.com/Luzifer/vrf-extract/ntro"
	"github.com/Luzifer/vrf-extract/vrf"
	"github.com/Luzifer/vrf-extract/vtex"
)

const (
	kindGeneric  = ""
	kindMaterial = ".vmat"
	kindTexture  = ".vtex"
)

// processor handles single resource files. Process may be called from
// multiple goroutines, the listing of one resource is written to Out in
// one piece.
type processor struct {
	Dest        string
	Export      bool
	Blocks      []string
	ImageFormat string
	DumpFormat  string
	Loader      *material.Loader
	Out         io.Writer

	outLock sync.Mutex
}

// resourceName strips directory and compiled suffix from a resource path
func resourceName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), "_c")
}

// resourceKind derives the kind of resource from the file extension
func resourceKind(file string) string {
	switch ext := strings.ToLower(filepath.Ext(resourceName(file))); ext {
	case kindMaterial, kindTexture:
		return ext
	default:
		return kindGeneric
	}
}

// Process decodes one resource file, lists it and exports its contents
// if requested
func (p *processor) Process(file string) error {
	data, err := os.ReadFile(file) //#nosec:G304 // Intended to read arbitrary files
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	res, err := vrf.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding resource: %w", err)
	}

	var (
		buf  = new(bytes.Buffer)
		name = resourceName(file)
		base = strings.TrimSuffix(name, filepath.Ext(name))
	)

	fmt.Fprintf(buf, "%s (version %d)\n", file, res.Version)
	for _, b := range res.Blocks {
		if len(p.Blocks) > 0 && !str.StringInSlice(b.Kind, p.Blocks) {
			continue
		}
		fmt.Fprintf(buf, "  %s\n", b)
	}

	switch resourceKind(file) {
	case kindTexture:
		err = p.texture(buf, base, res)
	case kindMaterial:
		err = p.material(buf, base, res)
	}
	if err != nil {
		return err
	}

	if p.DumpFormat != "" {
		if err = p.dump(buf, name, file, res); err != nil {
			return err
		}
	}

	p.outLock.Lock()
	defer p.outLock.Unlock()

	if _, err = buf.WriteTo(p.Out); err != nil {
		return fmt.Errorf("writing listing: %w", err)
	}

	return nil
}

func (p *processor) texture(buf io.Writer, base string, res *vrf.Resource) error {
	h, img, err := vtex.Decode(res)
	if err != nil {
		return fmt.Errorf("decoding texture: %w", err)
	}

	if !p.Export {
		fmt.Fprint(buf, h.String())
		return nil
	}

	dest := filepath.Join(p.Dest, base+"."+p.ImageFormat)
	if err = writeFile(dest, func(w io.Writer) error { return imageEncoders[p.ImageFormat](w, img) }); err != nil {
		return fmt.Errorf("exporting texture: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"file":   dest,
		"format": h.Format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Info("texture exported")

	return nil
}

func (p *processor) material(buf io.Writer, base string, res *vrf.Resource) error {
	record, err := ntro.Decode(res)
	if err != nil {
		return fmt.Errorf("decoding material record: %w", err)
	}

	m, err := material.FromStruct(record)
	if err != nil {
		return fmt.Errorf("reading material: %w", err)
	}

	keys := make([]string, 0, len(m.TextureParams))
	for k := range m.TextureParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(buf, "  material %s (shader %s)\n", m.Name, m.ShaderName)
	for _, k := range keys {
		fmt.Fprintf(buf, "    %-24s %s\n", k, m.TextureParams[k].Name)
	}

	if !p.Export {
		return nil
	}

	textures, err := p.Loader.MaterialTextures(m)
	if err != nil {
		return fmt.Errorf("loading material textures: %w", err)
	}

	for key, tex := range textures {
		if tex.Placeholder {
			logrus.WithFields(logrus.Fields{"material": m.Name, "param": key}).Debug("skipping placeholder texture")
			continue
		}

		if !filepath.IsLocal(key) {
			logrus.WithFields(logrus.Fields{"material": m.Name, "param": key}).Warn("skipping texture with unsafe param name")
			continue
		}

		dest := filepath.Join(p.Dest, base, key+"."+p.ImageFormat)
		if err = writeFile(dest, func(w io.Writer) error { return imageEncoders[p.ImageFormat](w, tex.Image) }); err != nil {
			return fmt.Errorf("exporting texture %s: %w", key, err)
		}

		logrus.WithFields(logrus.Fields{"file": dest, "texture": tex.Name}).Info("material texture exported")
	}

	return nil
}

func (p *processor) dump(buf io.Writer, name, file string, res *vrf.Resource) error {
	doc := map[string]any{
		"file":    file,
		"version": res.Version,
		"blocks":  blockDocument(res),
	}

	_, hasRecord := res.Block(vrf.BlockIntrospect)

	switch {
	case resourceKind(file) == kindTexture:
		h, err := vtex.DecodeHeader(res)
		if err != nil {
			return fmt.Errorf("decoding texture header: %w", err)
		}
		doc["texture"] = headerDocument(h)

	case hasRecord:
		record, err := ntro.Decode(res)
		if err != nil {
			return fmt.Errorf("decoding record: %w", err)
		}
		doc["data"] = record.Interface()
	}

	encode := func(w io.Writer) error { return dumpEncoders[p.DumpFormat](w, doc) }

	if !p.Export {
		if err := encode(buf); err != nil {
			return fmt.Errorf("dumping resource: %w", err)
		}
		return nil
	}

	dest := filepath.Join(p.Dest, name+"."+p.DumpFormat)
	if err := writeFile(dest, encode); err != nil {
		return fmt.Errorf("dumping resource: %w", err)
	}

	logrus.WithField("file", dest).Info("resource dumped")
	return nil
}
