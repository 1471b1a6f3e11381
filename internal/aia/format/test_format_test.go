package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupPresets(t *testing.T) {
	for _, name := range Variants() {
		o, err := Lookup(name)
		require.NoError(t, err, name)
		require.NoError(t, o.Validate(), name)
		require.Equal(t, name, o.Variant)
	}

	o, err := Lookup("")
	require.NoError(t, err)
	require.Equal(t, DefaultVariant, o.Variant)
	require.Equal(t, NestedDescriptor, o.DescriptorPath)
	require.True(t, o.RequiresBlocks())

	o, err = Lookup(" Classic ")
	require.NoError(t, err)
	require.Equal(t, RootDescriptor, o.DescriptorPath)
	require.Equal(t, Deflate, o.Compression)
	require.False(t, o.RequiresBlocks())

	_, err = Lookup("ai3")
	require.ErrorContains(t, err, "unknown variant")
}

func TestValidateRejectsBadCombinations(t *testing.T) {
	o := Options{Compression: Deflate, CompressionLevel: 12}.WithDefaults()
	require.ErrorContains(t, o.Validate(), "deflate level")

	o = Options{Compression: "brotli"}.WithDefaults()
	require.ErrorContains(t, o.Validate(), "unknown compression")

	o = Options{DescriptorPath: "meta/project.properties"}.WithDefaults()
	require.ErrorContains(t, o.Validate(), "descriptor path")
}

func TestNamespacePaths(t *testing.T) {
	o := Options{User: "jane.doe-42"}.WithDefaults()
	require.Equal(t, "appinventor.ai_janedoe42", o.Namespace())
	require.Equal(t, "src/appinventor/ai_janedoe42/Calc", o.SourceDir("Calc"))
	require.Equal(t, "appinventor.ai_janedoe42.Calc.Screen1", o.MainPointer("Calc", "Screen1"))

	o = Options{}.WithDefaults()
	require.Equal(t, "appinventor.ai_developer", o.Namespace())
}
