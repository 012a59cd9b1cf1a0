package diagnosis

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/leaf-doctor/internal/advice"
	"github.com/Brownie44l1/leaf-doctor/internal/labels"
	"github.com/Brownie44l1/leaf-doctor/internal/model"
	"github.com/Brownie44l1/leaf-doctor/internal/model/modeltest"
	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
)

type fakeResources struct {
	catalog     *labels.Catalog
	catalogErr  error
	oracle      model.Oracle
	oracleErr   error
	oracleAsked int
}

func (f *fakeResources) Catalog(context.Context) (*labels.Catalog, error) {
	return f.catalog, f.catalogErr
}

func (f *fakeResources) Oracle(context.Context) (model.Oracle, error) {
	f.oracleAsked++
	return f.oracle, f.oracleErr
}

var appleLabels = labels.LabelSet{"Apple___Apple_scab", "Apple___Black_rot", "Apple___healthy"}

func newTestService(set labels.LabelSet, oracle *modeltest.Oracle) (*Service, *fakeResources) {
	res := &fakeResources{
		catalog: &labels.Catalog{Labels: set, Source: labels.SourceManifest},
		oracle:  oracle,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(res, advice.Default(), logger), res
}

func leafPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: uint8(100 + x), B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDiagnose_HealthyApple(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.05, 0.03, 0.92}}
	svc, _ := newTestService(appleLabels, oracle)

	res, err := svc.Diagnose(context.Background(), leafPNG(t))
	require.NoError(t, err)
	require.Equal(t, "Apple___healthy", res.Label)
	require.Equal(t, 2, res.Index)
	require.Equal(t, advice.HealthyAppleTip, res.Tip)
	require.False(t, res.LowConfidence)
	require.Empty(t, res.Warning())
	require.Equal(t, "92.00%", res.ConfidencePercent())
	require.Equal(t, 1, oracle.Calls())
}

func TestDiagnose_LowConfidenceStillSucceeds(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.42, 0.30, 0.28}}
	svc, _ := newTestService(appleLabels, oracle)

	res, err := svc.Diagnose(context.Background(), leafPNG(t))
	require.NoError(t, err)
	require.Equal(t, "Apple___Apple_scab", res.Label)
	require.InDelta(t, 0.42, res.Confidence, 1e-6)
	require.True(t, res.LowConfidence)
	require.Equal(t, LowConfidenceWarning, res.Warning())
	require.Equal(t, "42.00%", res.ConfidencePercent())
}

func TestDiagnose_ThresholdIsExclusive(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.6, 0.4}}
	svc, _ := newTestService(labels.LabelSet{"a", "b"}, oracle)

	res, err := svc.Diagnose(context.Background(), leafPNG(t))
	require.NoError(t, err)
	require.False(t, res.LowConfidence)
}

func TestDiagnose_UnmappedLabelGetsGenericTip(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.1, 0.9}}
	svc, _ := newTestService(labels.LabelSet{"Apple___healthy", "Tomato___Late_blight"}, oracle)

	res, err := svc.Diagnose(context.Background(), leafPNG(t))
	require.NoError(t, err)
	require.Equal(t, "Tomato___Late_blight", res.Label)
	require.Equal(t, advice.GenericTip, res.Tip)
}

func TestDiagnose_EmptyCatalogNeverInvokesOracle(t *testing.T) {
	for name, set := range map[string]labels.LabelSet{"empty": {}, "nil": nil} {
		t.Run(name, func(t *testing.T) {
			oracle := &modeltest.Oracle{Vector: model.PredictionVector{1}}
			svc, res := newTestService(set, oracle)

			_, err := svc.Diagnose(context.Background(), leafPNG(t))
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			require.Contains(t, err.Error(), "label catalog unavailable")
			require.Equal(t, 0, oracle.Calls())
			require.Equal(t, 0, res.oracleAsked)
		})
	}
}

func TestDiagnose_CatalogErrorIsConfigurationError(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{1}}
	svc, res := newTestService(nil, oracle)
	res.catalog = &labels.Catalog{Labels: labels.LabelSet{}, Source: labels.SourceNone}
	res.catalogErr = labels.ErrUnavailable

	_, err := svc.Diagnose(context.Background(), leafPNG(t))
	require.ErrorIs(t, err, labels.ErrUnavailable)
	require.Equal(t, KindConfiguration, Kind(err))
	require.Equal(t, 0, oracle.Calls())
}

func TestDiagnose_CorruptUpload(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.1, 0.2, 0.7}}
	svc, _ := newTestService(appleLabels, oracle)

	res, err := svc.Diagnose(context.Background(), []byte("GIF89a garbage"))
	require.Nil(t, res)
	var imgErr *InvalidImageError
	require.ErrorAs(t, err, &imgErr)
	require.ErrorIs(t, err, preprocess.ErrDecode)
	require.Equal(t, 0, oracle.Calls())
}

func TestDiagnose_OversizedHeaderIsInvalidImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	data := buf.Bytes()
	// Rewrite IHDR to claim 60000x60000 and fix up its checksum.
	binary.BigEndian.PutUint32(data[16:20], 60000)
	binary.BigEndian.PutUint32(data[20:24], 60000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.1, 0.2, 0.7}}
	svc, _ := newTestService(appleLabels, oracle)

	res, err := svc.Diagnose(context.Background(), data)
	require.Nil(t, res)
	require.Equal(t, KindInvalidImage, Kind(err))
	require.ErrorIs(t, err, preprocess.ErrDecode)
	require.Equal(t, 0, oracle.Calls())
}

func TestDiagnose_IndexOutOfRange(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.1, 0.2, 0.7}}
	svc, _ := newTestService(labels.LabelSet{"a", "b"}, oracle)

	res, err := svc.Diagnose(context.Background(), leafPNG(t))
	require.Nil(t, res)
	var mismatch *IndexMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 2, mismatch.Index)
	require.Equal(t, 2, mismatch.Labels)
	require.Contains(t, err.Error(), "out of range")
}

func TestDiagnose_MatchingCardinalityNeverMismatches(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := leafPNG(t)

	for n := 1; n <= 40; n++ {
		set := make(labels.LabelSet, n)
		vec := make(model.PredictionVector, n)
		var best float32
		for i := range set {
			set[i] = string(rune('A' + i))
			vec[i] = rng.Float32()
			if vec[i] > best {
				best = vec[i]
			}
		}

		svc, _ := newTestService(set, &modeltest.Oracle{Vector: vec})
		res, err := svc.Diagnose(context.Background(), data)
		require.NoError(t, err)
		require.InDelta(t, best, res.Confidence, 1e-6)
		require.Equal(t, vec[res.Index], res.Confidence)
	}
}

func TestDiagnose_Deterministic(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.2, 0.5, 0.3}}
	svc, _ := newTestService(appleLabels, oracle)
	data := leafPNG(t)

	first, err := svc.Diagnose(context.Background(), data)
	require.NoError(t, err)
	second, err := svc.Diagnose(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDiagnose_OracleUnavailable(t *testing.T) {
	svc, res := newTestService(appleLabels, nil)
	res.oracleErr = errors.New("model artifact missing")

	_, err := svc.Diagnose(context.Background(), leafPNG(t))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "classifier unavailable", cfgErr.Reason)
}

func TestDiagnose_UnexpectedFailures(t *testing.T) {
	cases := map[string]*modeltest.Oracle{
		"predict error": {Err: errors.New("runtime exploded")},
		"empty vector":  {Vector: model.PredictionVector{}, Size: 3},
		"panic":         {PanicWith: "kaboom"},
	}
	for name, oracle := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(appleLabels, oracle)

			res, err := svc.Diagnose(context.Background(), leafPNG(t))
			require.Nil(t, res)
			var unexpected *UnexpectedError
			require.ErrorAs(t, err, &unexpected)
			require.Equal(t, KindUnexpected, Kind(err))
		})
	}
}

func TestDiagnoseTensor(t *testing.T) {
	oracle := &modeltest.Oracle{Vector: model.PredictionVector{0.7, 0.2, 0.1}}
	svc, _ := newTestService(appleLabels, oracle)

	res, err := svc.DiagnoseTensor(context.Background(), make([]float32, preprocess.InputLen))
	require.NoError(t, err)
	require.Equal(t, "Apple___Apple_scab", res.Label)

	_, err = svc.DiagnoseTensor(context.Background(), make([]float32, 12))
	require.Equal(t, KindInvalidImage, Kind(err))
	require.Equal(t, 1, oracle.Calls())
}

func TestKind(t *testing.T) {
	require.Equal(t, KindConfiguration, Kind(&ConfigurationError{Reason: "x"}))
	require.Equal(t, KindInvalidImage, Kind(&InvalidImageError{Cause: errors.New("x")}))
	require.Equal(t, KindIndexMismatch, Kind(&IndexMismatchError{Index: 3, Labels: 2}))
	require.Equal(t, KindUnexpected, Kind(errors.New("x")))
}

func TestStatus(t *testing.T) {
	svc, res := newTestService(appleLabels, &modeltest.Oracle{Vector: model.PredictionVector{1, 0, 0}})
	st := svc.Status(context.Background())
	require.True(t, st.Ready())
	require.True(t, st.ModelLoaded)
	require.Equal(t, 3, st.Labels)
	require.Equal(t, labels.SourceManifest, st.LabelSource)

	res.oracleErr = errors.New("no model")
	st = svc.Status(context.Background())
	require.False(t, st.Ready())
	require.False(t, st.ModelLoaded)

	res.catalog = &labels.Catalog{Labels: labels.LabelSet{}}
	st = svc.Status(context.Background())
	require.Equal(t, KindConfiguration, Kind(st.Err))
	require.Equal(t, 0, st.Labels)
}
