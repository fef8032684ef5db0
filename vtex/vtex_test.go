package vtex_test

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/Luzifer/vrf-extract/cursor"
	"github.com/Luzifer/vrf-extract/vrf"
	"github.com/Luzifer/vrf-extract/vrf/vrftest"
	"github.com/Luzifer/vrf-extract/vtex"
)

const (
	red565   = 0xf800
	green565 = 0x07e0
	blue565  = 0x001f
)

func textureResource(t *testing.T, tex vrftest.Texture, pixels []byte, deps ...vrftest.SpecialDependency) *vrf.Resource {
	t.Helper()

	b := vrftest.NewResource()
	if len(deps) > 0 {
		b.Add("REDI", vrftest.EditInfoBlock(deps...))
	}
	b.Add("DATA", tex.Bytes()).Trailer(pixels)

	res, err := vrf.Decode(b.Bytes())
	require.NoError(t, err)
	return res
}

func dxt1Block(c0, c1 uint16, indices uint32) []byte {
	w := vrftest.NewWriter()
	w.U16(c0)
	w.U16(c1)
	w.U32(indices)
	return w.Bytes()
}

func dxt5Block(a0, a1 uint8, alphaIndices uint64, c0, c1 uint16, indices uint32) []byte {
	w := vrftest.NewWriter()
	w.U8(a0)
	w.U8(a1)
	for i := 0; i < 6; i++ {
		w.U8(uint8(alphaIndices >> (8 * i))) //#nosec:G115
	}
	w.U16(c0)
	w.U16(c1)
	w.U32(indices)
	return w.Bytes()
}

func trueHeightChunk(h uint32) vrftest.ExtraData {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[4:], h)
	return vrftest.ExtraData{Tag: uint32(vtex.ExtraFillToPowerOfTwo), Data: data}
}

func pixel(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA) //nolint:forcetypeassert
}

func TestDecodeHeader(t *testing.T) {
	res := textureResource(t, vrftest.Texture{
		Version:      1,
		Flags:        uint16(vtex.FlagSuggestClampS | vtex.FlagCubeTexture),
		Reflectivity: [4]float32{0.25, 0.5, 0.75, 1},
		Width:        64,
		Height:       64,
		Depth:        1,
		Format:       uint8(vtex.FormatDXT5),
		MipCount:     7,
		Picmip0Res:   64,
		ExtraData: []vrftest.ExtraData{
			{Tag: uint32(vtex.ExtraSheet), Data: []byte{1, 2, 3}},
			trueHeightChunk(50),
			{Tag: uint32(vtex.ExtraCompressedMipSize), Data: []byte{9, 9, 9, 9}},
		},
	}, nil)

	h, err := vtex.DecodeHeader(res)
	require.NoError(t, err)

	assert.Equal(t, uint16(1), h.Version)
	assert.True(t, h.Flags.Has(vtex.FlagCubeTexture))
	assert.False(t, h.Flags.Has(vtex.FlagNoLOD))
	assert.Equal(t, [4]float32{0.25, 0.5, 0.75, 1}, h.Reflectivity)
	assert.Equal(t, uint16(64), h.Width)
	assert.Equal(t, uint16(64), h.Height)
	assert.Equal(t, uint16(50), h.TrueHeight)
	assert.Equal(t, vtex.FormatDXT5, h.Format)
	assert.Equal(t, uint8(7), h.MipCount)
	assert.Equal(t, uint32(64), h.Picmip0Res)

	// Every entry is read after the previous chunk, so a cursor left at
	// the chunk would garble the following entries
	require.Len(t, h.ExtraData, 3)
	assert.Equal(t, []byte{1, 2, 3}, h.ExtraData[vtex.ExtraSheet])
	assert.Equal(t, []byte{9, 9, 9, 9}, h.ExtraData[vtex.ExtraCompressedMipSize])

	data, _ := res.Block(vrf.BlockData)
	assert.Equal(t, data.End(), h.DataOffset)

	desc := h.String()
	assert.Contains(t, desc, "2 (VTEX_FORMAT_DXT5)")
	assert.Contains(t, desc, "VTEX_FLAG_CUBE_TEXTURE")
	assert.Contains(t, desc, "[ Entry 1: VTEX_EXTRA_DATA_FILL_TO_POWER_OF_TWO - 8 bytes ]")
}

func TestDecodeHeaderDefaults(t *testing.T) {
	res := textureResource(t, vrftest.Texture{Version: 1, Width: 4, Height: 8, Format: uint8(vtex.FormatDXT1)}, nil)

	h, err := vtex.DecodeHeader(res)
	require.NoError(t, err)
	assert.Equal(t, uint16(8), h.TrueHeight)
	assert.Empty(t, h.ExtraData)
}

func TestTrueHeightChunkPayload(t *testing.T) {
	res := textureResource(t, vrftest.Texture{
		Version: 1, Width: 4, Height: 64, Format: uint8(vtex.FormatDXT1),
		ExtraData: []vrftest.ExtraData{{Tag: uint32(vtex.ExtraFillToPowerOfTwo), Data: []byte{0, 0, 0, 0, 50, 0, 0, 0}}},
	}, nil)

	h, err := vtex.DecodeHeader(res)
	require.NoError(t, err)
	assert.Equal(t, uint16(50), h.TrueHeight)
}

func TestDecodeHeaderErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		tex    vrftest.Texture
		expect error
		not    error
	}{
		"version": {
			tex:    vrftest.Texture{Version: 2, Width: 4, Height: 4},
			expect: vrf.ErrUnsupportedVersion,
			not:    vrf.ErrMalformedContainer,
		},
		"short true height chunk": {
			tex: vrftest.Texture{Version: 1, Width: 4, Height: 4, ExtraData: []vrftest.ExtraData{
				{Tag: uint32(vtex.ExtraFillToPowerOfTwo), Data: []byte{0, 0, 0, 50}},
			}},
			expect: vrf.ErrMalformedContainer,
		},
		"duplicate chunk": {
			tex: vrftest.Texture{Version: 1, Width: 4, Height: 4, ExtraData: []vrftest.ExtraData{
				{Tag: uint32(vtex.ExtraSheet), Data: []byte{1}},
				{Tag: uint32(vtex.ExtraSheet), Data: []byte{2}},
			}},
			expect: vrf.ErrMalformedContainer,
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := vtex.DecodeHeader(textureResource(t, tc.tex, nil))
			require.ErrorIs(t, err, tc.expect)
			if tc.not != nil {
				assert.NotErrorIs(t, err, tc.not)
			}
		})
	}
}

func TestChunkOutsideBlock(t *testing.T) {
	raw := vrftest.Texture{
		Version: 1, Width: 4, Height: 4,
		ExtraData: []vrftest.ExtraData{{Tag: uint32(vtex.ExtraSheet), Data: []byte{1, 2, 3, 4}}},
	}.Bytes()

	// Size of the only chunk reaches past the block
	binary.LittleEndian.PutUint32(raw[40+8:], 1000)

	res, err := vrf.Decode(vrftest.NewResource().Add("DATA", raw).Bytes())
	require.NoError(t, err)

	_, err = vtex.DecodeHeader(res)
	assert.ErrorIs(t, err, vrf.ErrMalformedContainer)
}

func TestDXT1SolidBlock(t *testing.T) {
	for name, tc := range map[string]struct {
		block  []byte
		expect color.NRGBA
		delta  float64
	}{
		"first endpoint":  {block: dxt1Block(red565, blue565, 0x00000000), expect: color.NRGBA{R: 255, A: 255}},
		"second endpoint": {block: dxt1Block(green565, blue565, 0x55555555), expect: color.NRGBA{B: 255, A: 255}},
		"interpolated":    {block: dxt1Block(red565, blue565, 0xaaaaaaaa), expect: color.NRGBA{R: 170, B: 85, A: 255}, delta: 8},
		"punch through":   {block: dxt1Block(blue565, red565, 0xffffffff), expect: color.NRGBA{}},
		"three color mid": {block: dxt1Block(blue565, red565, 0xaaaaaaaa), expect: color.NRGBA{R: 127, B: 127, A: 255}, delta: 8},
	} {
		t.Run(name, func(t *testing.T) {
			img, err := vtex.DecompressDXT1(cursor.New(tc.block), 4, 4)
			require.NoError(t, err)

			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					assertColorNear(t, tc.expect, pixel(img, x, y), tc.delta)
				}
			}
		})
	}
}

// assertColorNear compares channels allowing interpolated colors to be
// off by up to one 565 step
func assertColorNear(t *testing.T, expect, actual color.NRGBA, delta float64) {
	t.Helper()

	assert.InDelta(t, expect.R, actual.R, delta, "red")
	assert.InDelta(t, expect.G, actual.G, delta, "green")
	assert.InDelta(t, expect.B, actual.B, delta, "blue")
	assert.Equal(t, expect.A, actual.A, "alpha")
}

func TestDXT5Interpolated(t *testing.T) {
	// Color index 2 for every pixel, alpha index 2 of eight value mode
	var idx uint64
	for i := 0; i < 16; i++ {
		idx |= 2 << (3 * i)
	}

	img, err := vtex.DecompressDXT5(cursor.New(dxt5Block(255, 10, idx, red565, blue565, 0xaaaaaaaa)), 4, 4, false)
	require.NoError(t, err)

	p := pixel(img, 2, 1)
	assert.InDelta(t, 170, p.R, 8)
	assert.InDelta(t, 85, p.B, 8)
	assert.InDelta(t, 220, p.A, 2)
}

func TestDXT1PartialBlock(t *testing.T) {
	img, err := vtex.DecompressDXT1(cursor.New(dxt1Block(red565, blue565, 0)), 3, 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, pixel(img, 2, 1))
}

func TestDXT1Truncated(t *testing.T) {
	_, err := vtex.DecompressDXT1(cursor.New(dxt1Block(red565, blue565, 0)), 8, 4)
	assert.ErrorIs(t, err, cursor.ErrOutOfBounds)
}

func TestDXT5YCoCg(t *testing.T) {
	block := dxt5Block(200, 200, 0, red565, red565, 0)
	tex := vrftest.Texture{Version: 1, Width: 4, Height: 4, Depth: 1, Format: uint8(vtex.FormatDXT5), MipCount: 1}

	ycocg := vrftest.SpecialDependency{CompilerIdentifier: vtex.YCoCgCompilerIdentifier, String: vtex.YCoCgDependency}
	other := vrftest.SpecialDependency{CompilerIdentifier: "CompileTexture", String: "Texture Compiler Version Mip HeightField"}

	for name, tc := range map[string]struct {
		deps   []vrftest.SpecialDependency
		flag   bool
		expect color.NRGBA
	}{
		"flagged":      {deps: []vrftest.SpecialDependency{other, ycocg}, flag: true, expect: color.NRGBA{R: 255, G: 72, B: 201, A: 255}},
		"other deps":   {deps: []vrftest.SpecialDependency{other}, expect: color.NRGBA{R: 255, A: 200}},
		"no edit info": {expect: color.NRGBA{R: 255, A: 200}},
	} {
		t.Run(name, func(t *testing.T) {
			res := textureResource(t, tex, block, tc.deps...)

			flag, err := vtex.IsYCoCg(res)
			require.NoError(t, err)
			assert.Equal(t, tc.flag, flag)

			_, img, err := vtex.Decode(res)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, pixel(img, 1, 2))
		})
	}
}

func TestDXT5Alpha(t *testing.T) {
	// Index 1 for every pixel selects the second alpha endpoint
	var idx uint64
	for i := 0; i < 16; i++ {
		idx |= 1 << (3 * i)
	}

	img, err := vtex.DecompressDXT5(cursor.New(dxt5Block(255, 10, idx, green565, green565, 0)), 4, 4, false)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{G: 255, A: 10}, pixel(img, 3, 3))

	// Six value mode: index 6 and 7 are fixed
	idx = 6 | 7<<3
	img, err = vtex.DecompressDXT5(cursor.New(dxt5Block(10, 255, idx, green565, green565, 0)), 4, 4, false)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), pixel(img, 0, 0).A)
	assert.Equal(t, uint8(255), pixel(img, 1, 0).A)
}

func TestCropToTrueHeight(t *testing.T) {
	var pixels []byte
	for row := 0; row < 16; row++ {
		// Distinct color per block row
		pixels = append(pixels, dxt1Block(uint16(row)<<11, 0, 0)...) //#nosec:G115
	}

	tex := vrftest.Texture{
		Version: 1, Width: 4, Height: 64, Depth: 1, MipCount: 1,
		Format:    uint8(vtex.FormatDXT1),
		ExtraData: []vrftest.ExtraData{trueHeightChunk(50)},
	}

	_, img, err := vtex.Decode(textureResource(t, tex, pixels))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 50), img.Bounds())

	full, err := vtex.DecompressDXT1(cursor.New(pixels), 4, 64)
	require.NoError(t, err)

	for y := 0; y < 50; y++ {
		for x := 0; x < 4; x++ {
			require.Equal(t, pixel(full, x, y), pixel(img, x, y), "pixel %d,%d", x, y)
		}
	}

	// The crop owns its pixels
	cropped, ok := img.(*image.NRGBA)
	require.True(t, ok)
	assert.Len(t, cropped.Pix, 4*4*50)
}

func TestCompressedMipSkip(t *testing.T) {
	// 16x16 with three levels: 8 + 32 bytes of coarser levels
	skip := bytes.Repeat([]byte{0xff}, 40)
	pixels := append(skip, bytes.Repeat(dxt1Block(green565, 0, 0), 16)...)

	tex := vrftest.Texture{Version: 1, Width: 16, Height: 16, Depth: 1, MipCount: 3, Format: uint8(vtex.FormatDXT1)}

	_, img, err := vtex.Decode(textureResource(t, tex, pixels))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, pixel(img, 15, 15))
}

func TestRGBA8888(t *testing.T) {
	// 2x1 with two levels: one 4 byte row of the coarser level first
	pixels := []byte{
		0xff, 0xff, 0xff, 0xff,
		1, 2, 3, 4,
		5, 6, 7, 8,
	}

	tex := vrftest.Texture{Version: 1, Width: 2, Height: 1, Depth: 1, MipCount: 2, Format: uint8(vtex.FormatRGBA8888)}

	_, img, err := vtex.Decode(textureResource(t, tex, pixels))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 4}, pixel(img, 0, 0))
	assert.Equal(t, color.NRGBA{R: 5, G: 6, B: 7, A: 8}, pixel(img, 1, 0))
}

func TestFloatFormats(t *testing.T) {
	// Payload holds the last pixel first
	values := []float32{
		1, 0, 0, 1, // x=1 y=1
		0, 1, 0, 1, // x=0 y=1
		0, 0, 1, 0.5, // x=1 y=0
		2, -1, float32(math.NaN()), 0.5, // x=0 y=0, clamped
	}

	expect := map[image.Point]color.NRGBA{
		image.Pt(1, 1): {R: 255, A: 255},
		image.Pt(0, 1): {G: 255, A: 255},
		image.Pt(1, 0): {B: 255, A: 127},
		image.Pt(0, 0): {R: 255, A: 127},
	}

	half := vrftest.NewWriter()
	single := vrftest.NewWriter()
	for _, v := range values {
		half.U16(float16.Fromfloat32(v).Bits())
		single.F32(v)
	}

	for name, tc := range map[string]struct {
		format vtex.Format
		pixels []byte
	}{
		"half":   {vtex.FormatRGBA16161616F, half.Bytes()},
		"single": {vtex.FormatRGBA32323232F, single.Bytes()},
	} {
		t.Run(name, func(t *testing.T) {
			tex := vrftest.Texture{Version: 1, Width: 2, Height: 2, Depth: 1, MipCount: 1, Format: uint8(tc.format)}

			_, img, err := vtex.Decode(textureResource(t, tex, tc.pixels))
			require.NoError(t, err)

			for p, c := range expect {
				assert.Equal(t, c, pixel(img, p.X, p.Y), "pixel %v", p)
			}
		})
	}
}

func TestEmbeddedPNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 3))
	src.SetNRGBA(1, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	for _, format := range []vtex.Format{vtex.FormatPNG, vtex.FormatPNGRGBA8888} {
		tex := vrftest.Texture{Version: 1, Width: 2, Height: 3, Depth: 1, MipCount: 1, Format: uint8(format)}

		_, img, err := vtex.Decode(textureResource(t, tex, buf.Bytes()))
		require.NoError(t, err, format.String())
		assert.Equal(t, src.Bounds(), img.Bounds())
		assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, pixel(img, 1, 2))
	}
}

func TestUnsupportedPixelFormat(t *testing.T) {
	for _, format := range []vtex.Format{vtex.FormatUnknown, vtex.FormatI8, vtex.FormatR16F, 15, 99} {
		tex := vrftest.Texture{Version: 1, Width: 4, Height: 4, Depth: 1, MipCount: 1, Format: uint8(format)}

		_, img, err := vtex.Decode(textureResource(t, tex, make([]byte, 64)))
		require.ErrorIs(t, err, vrf.ErrUnsupportedPixelFormat, format.String())
		assert.NotErrorIs(t, err, vrf.ErrMalformedContainer)
		assert.Nil(t, img)
	}
}

func TestTruncatedPixels(t *testing.T) {
	tex := vrftest.Texture{Version: 1, Width: 8, Height: 8, Depth: 1, MipCount: 1, Format: uint8(vtex.FormatDXT5)}

	_, _, err := vtex.Decode(textureResource(t, tex, make([]byte, 16)))
	assert.ErrorIs(t, err, vrf.ErrMalformedContainer)
}

func TestOversizedFloatTexture(t *testing.T) {
	for _, format := range []vtex.Format{vtex.FormatRGBA16161616F, vtex.FormatRGBA32323232F} {
		tex := vrftest.Texture{Version: 1, Width: 30000, Height: 30000, Depth: 1, MipCount: 1, Format: uint8(format)}

		_, img, err := vtex.Decode(textureResource(t, tex, make([]byte, 16)))
		require.ErrorIs(t, err, vrf.ErrMalformedContainer, format.String())
		assert.ErrorIs(t, err, cursor.ErrOutOfBounds, format.String())
		assert.Nil(t, img)
	}
}

func TestZeroTrueHeightKeepsHeight(t *testing.T) {
	tex := vrftest.Texture{
		Version: 1, Width: 4, Height: 8, Depth: 1, MipCount: 1,
		Format:    uint8(vtex.FormatDXT1),
		ExtraData: []vrftest.ExtraData{trueHeightChunk(0)},
	}

	_, img, err := vtex.Decode(textureResource(t, tex, bytes.Repeat(dxt1Block(red565, 0, 0), 2)))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 8), img.Bounds())
}
