package main

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Luzifer/vrf-extract/assets"
	"github.com/Luzifer/vrf-extract/material"
	"github.com/Luzifer/vrf-extract/ntro"
	"github.com/Luzifer/vrf-extract/vrf"
	"github.com/Luzifer/vrf-extract/vrf/vrftest"
	"github.com/Luzifer/vrf-extract/vtex"
)

var testColor = color.NRGBA{R: 10, G: 20, B: 30, A: 255}

func testTexture() []byte {
	tex := vrftest.Texture{Version: 1, Width: 1, Height: 1, Depth: 1, MipCount: 1, Format: uint8(vtex.FormatRGBA8888)}

	return vrftest.NewResource().
		Add("DATA", tex.Bytes()).
		Trailer([]byte{testColor.R, testColor.G, testColor.B, testColor.A}).
		Bytes()
}

func testMaterial() []byte {
	return testMaterialWithColorKey("g_tColor")
}

func testMaterialWithColorKey(colorKey string) []byte {
	schema := []vrftest.Struct{
		{ID: 1, Name: "MaterialResourceData_t", DiskSize: 16, Fields: []vrftest.Field{
			{Name: "m_materialName", Type: int16(ntro.TypeString), Offset: 0},
			{Name: "m_shaderName", Type: int16(ntro.TypeString), Offset: 4},
			{Name: "m_textureParams", Type: int16(ntro.TypeStruct), TypeData: 2, Offset: 8, Indirections: []byte{byte(ntro.IndirectionArray)}},
		}},
		{ID: 2, Name: "MaterialParamTexture_t", DiskSize: 12, Fields: []vrftest.Field{
			{Name: "m_name", Type: int16(ntro.TypeString), Offset: 0},
			{Name: "m_pValue", Type: int16(ntro.TypeExternalReference), Offset: 4},
		}},
	}

	w := vrftest.NewWriter()
	w.Ref("name")
	w.Ref("shader")
	w.Ref("params")
	w.U32(2) //nolint:mnd

	w.Mark("params")
	w.Ref("color")
	w.U64(1)
	w.Ref("normal")
	w.U64(2) //nolint:mnd

	w.CString("name", "materials/dev/floor.vmat")
	w.CString("shader", "vr_standard.vfx")
	w.CString("color", colorKey)
	w.CString("normal", "g_tNormal")

	return vrftest.NewResource().
		Add("RERL", vrftest.ExternalRefsBlock(
			vrftest.ExternalRef{ID: 1, Name: "materials/dev/floor_color.vtex"},
			vrftest.ExternalRef{ID: 2, Name: "materials/dev/floor_normal.vtex"}, //nolint:mnd
		)).
		Add("NTRO", vrftest.IntrospectionBlock(schema...)).
		Add("DATA", w.Bytes()).
		Bytes()
}

func writeTestFile(t *testing.T, path string, data []byte) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newTestProcessor(t *testing.T, r assets.Resolver) (*processor, *bytes.Buffer) {
	t.Helper()

	logger, _ := logtest.NewNullLogger()
	out := new(bytes.Buffer)

	return &processor{
		Dest:        t.TempDir(),
		ImageFormat: "png",
		Loader:      material.NewLoader(r, material.WithLogger(logger)),
		Out:         out,
	}, out
}

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "floor.vtex", resourceName("/tmp/materials/floor.vtex_c"))
	assert.Equal(t, kindTexture, resourceKind("/tmp/materials/floor.vtex_c"))
	assert.Equal(t, kindMaterial, resourceKind("floor.VMAT_c"))
	assert.Equal(t, kindGeneric, resourceKind("floor.vmdl_c"))
}

func TestProcessListsTexture(t *testing.T) {
	file := writeTestFile(t, filepath.Join(t.TempDir(), "floor.vtex_c"), testTexture())

	p, out := newTestProcessor(t, assets.MapResolver{})
	require.NoError(t, p.Process(file))

	assert.Contains(t, out.String(), "DATA @ 0x")
	assert.Contains(t, out.String(), "VTEX_FORMAT_RGBA8888")

	p.Blocks = []string{"REDI"}
	out.Reset()
	require.NoError(t, p.Process(file))
	assert.NotContains(t, out.String(), "DATA @ 0x")
}

func TestProcessExportsTexture(t *testing.T) {
	file := writeTestFile(t, filepath.Join(t.TempDir(), "floor.vtex_c"), testTexture())

	p, _ := newTestProcessor(t, assets.MapResolver{})
	p.Export = true

	require.NoError(t, p.Process(file))

	f, err := os.Open(filepath.Join(p.Dest, "floor.png")) //#nosec:G304
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, testColor, color.NRGBAModel.Convert(img.At(0, 0)))

	p.ImageFormat = "webp"
	require.NoError(t, p.Process(file))

	raw, err := os.ReadFile(filepath.Join(p.Dest, "floor.webp")) //#nosec:G304
	require.NoError(t, err)
	require.Greater(t, len(raw), 12)
	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, "WEBP", string(raw[8:12]))
}

func TestProcessExportsMaterial(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "materials", "dev", "floor_color.vtex_c"), testTexture())
	file := writeTestFile(t, filepath.Join(root, "materials", "dev", "floor.vmat_c"), testMaterial())

	p, out := newTestProcessor(t, assets.NewDirResolver(root))
	p.Export = true

	require.NoError(t, p.Process(file))
	assert.Contains(t, out.String(), "material materials/dev/floor.vmat (shader vr_standard.vfx)")

	_, err := os.Stat(filepath.Join(p.Dest, "floor", "g_tColor.png"))
	assert.NoError(t, err)

	// Missing normal map is substituted and not exported
	_, err = os.Stat(filepath.Join(p.Dest, "floor", "g_tNormal.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessSkipsEscapingParamNames(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "materials", "dev", "floor_color.vtex_c"), testTexture())
	file := writeTestFile(t, filepath.Join(root, "materials", "dev", "floor.vmat_c"), testMaterialWithColorKey("../../evil"))

	p, _ := newTestProcessor(t, assets.NewDirResolver(root))
	p.Dest = filepath.Join(t.TempDir(), "out")
	p.Export = true

	require.NoError(t, p.Process(file))

	_, err := os.Stat(filepath.Join(p.Dest, "floor", "..", "..", "evil.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessDump(t *testing.T) {
	file := writeTestFile(t, filepath.Join(t.TempDir(), "floor.vmat_c"), testMaterial())

	type document struct {
		Version uint16 `json:"version" yaml:"version" cbor:"version"`
		Blocks  []struct {
			Kind string `json:"kind" yaml:"kind" cbor:"kind"`
		} `json:"blocks" yaml:"blocks" cbor:"blocks"`
		Data struct {
			Name   string `json:"m_materialName" yaml:"m_materialName" cbor:"m_materialName"`
			Shader string `json:"m_shaderName" yaml:"m_shaderName" cbor:"m_shaderName"`
		} `json:"data" yaml:"data" cbor:"data"`
	}

	for format, unmarshal := range map[string]func([]byte, any) error{
		"json": json.Unmarshal,
		"yaml": yaml.Unmarshal,
		"cbor": cbor.Unmarshal,
	} {
		p, _ := newTestProcessor(t, assets.MapResolver{})
		p.Export = true
		p.DumpFormat = format

		require.NoError(t, p.Process(file), format)

		raw, err := os.ReadFile(filepath.Join(p.Dest, "floor.vmat."+format)) //#nosec:G304
		require.NoError(t, err, format)

		var doc document
		require.NoError(t, unmarshal(raw, &doc), format)
		assert.Equal(t, "materials/dev/floor.vmat", doc.Data.Name, format)
		assert.Equal(t, "vr_standard.vfx", doc.Data.Shader, format)
		require.Len(t, doc.Blocks, 3, format)
		assert.Equal(t, vrf.BlockExternalRefs, doc.Blocks[0].Kind, format)
	}
}

func TestProcessRejectsMalformed(t *testing.T) {
	file := writeTestFile(t, filepath.Join(t.TempDir(), "broken.vtex_c"), []byte("short"))

	p, out := newTestProcessor(t, assets.MapResolver{})
	assert.ErrorIs(t, p.Process(file), vrf.ErrMalformedContainer)
	assert.Empty(t, out.String())
}

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.FatalLevel)
	os.Exit(m.Run())
}
