package vtex

import (
	"fmt"
	"strings"
)

// Format is the pixel format of the texture payload
type Format uint8

// Known pixel formats
const (
	FormatUnknown       Format = 0
	FormatDXT1          Format = 1
	FormatDXT5          Format = 2
	FormatI8            Format = 3
	FormatRGBA8888      Format = 4
	FormatR16           Format = 5
	FormatRG1616        Format = 6
	FormatRGBA16161616  Format = 7
	FormatR16F          Format = 8
	FormatRG1616F       Format = 9
	FormatRGBA16161616F Format = 10
	FormatR32F          Format = 11
	FormatRG3232F       Format = 12
	FormatRGB323232F    Format = 13
	FormatRGBA32323232F Format = 14
	FormatPNG           Format = 16
	FormatJPEGRGBA8888  Format = 17
	FormatPNGRGBA8888   Format = 18
)

var formatNames = map[Format]string{
	FormatUnknown:       "UNKNOWN",
	FormatDXT1:          "DXT1",
	FormatDXT5:          "DXT5",
	FormatI8:            "I8",
	FormatRGBA8888:      "RGBA8888",
	FormatR16:           "R16",
	FormatRG1616:        "RG1616",
	FormatRGBA16161616:  "RGBA16161616",
	FormatR16F:          "R16F",
	FormatRG1616F:       "RG1616F",
	FormatRGBA16161616F: "RGBA16161616F",
	FormatR32F:          "R32F",
	FormatRG3232F:       "RG3232F",
	FormatRGB323232F:    "RGB323232F",
	FormatRGBA32323232F: "RGBA32323232F",
	FormatPNG:           "PNG",
	FormatJPEGRGBA8888:  "JPEG_RGBA8888",
	FormatPNGRGBA8888:   "PNG_RGBA8888",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("%d", uint8(f))
}

// Flags is the flag set of the texture header
type Flags uint16

// Known texture flags
const (
	FlagSuggestClampS Flags = 1 << iota
	FlagSuggestClampT
	FlagSuggestClampU
	FlagNoLOD
	FlagCubeTexture
	FlagVolumeTexture
	FlagTextureArray
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagSuggestClampS, "SUGGEST_CLAMPS"},
	{FlagSuggestClampT, "SUGGEST_CLAMPT"},
	{FlagSuggestClampU, "SUGGEST_CLAMPU"},
	{FlagNoLOD, "NO_LOD"},
	{FlagCubeTexture, "CUBE_TEXTURE"},
	{FlagVolumeTexture, "VOLUME_TEXTURE"},
	{FlagTextureArray, "TEXTURE_ARRAY"},
}

// Has reports whether all bits of flag are set
func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) String() string {
	var names []string
	for _, n := range flagNames {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ExtraDataTag identifies a chunk of the extra data directory
type ExtraDataTag uint32

// Known extra data chunks
const (
	ExtraFallbackBits      ExtraDataTag = 1
	ExtraSheet             ExtraDataTag = 2
	ExtraFillToPowerOfTwo  ExtraDataTag = 3
	ExtraCompressedMipSize ExtraDataTag = 4
)

func (t ExtraDataTag) String() string {
	switch t {
	case ExtraFallbackBits:
		return "FALLBACK_BITS"
	case ExtraSheet:
		return "SHEET"
	case ExtraFillToPowerOfTwo:
		return "FILL_TO_POWER_OF_TWO"
	case ExtraCompressedMipSize:
		return "COMPRESSED_MIP_SIZE"
	default:
		return fmt.Sprintf("%d", uint32(t))
	}
}
