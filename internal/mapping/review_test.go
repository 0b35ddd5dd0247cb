package mapping

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeReview_CreatesMappingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	review := writeFile(t, dir, "review.csv", strings.Join([]string{
		"source_code,suggestion_rank,suggested_gbd_cause,confidence_score,human_mapping",
		"J44,1,Respiratory diseases,0.72,Respiratory diseases",
		"J44,2,Cardiovascular diseases,0.41,",
		"K92,0,,0,",
	}, "\n") + "\n")
	mappingPath := filepath.Join(dir, "map.csv")

	n, err := MergeReview(review, mappingPath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(mappingPath)
	require.NoError(t, err)
	var rows []directRow
	require.NoError(t, csvutil.Unmarshal(data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "J44", rows[0].SourceCode)
	assert.Equal(t, "Respiratory diseases", rows[0].TargetCode)
}

func TestMergeReview_UpdatesExistingMapping(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mappingPath := writeFile(t, dir, "map.csv",
		"source_code,target_code\nA00,Cholera\nJ44,Old cause\n")
	review := writeFile(t, dir, "review.csv", strings.Join([]string{
		"source_code,suggestion_rank,suggested_gbd_cause,confidence_score,human_mapping",
		"J44,1,Respiratory diseases,0.72,New cause",
		"K92,0,,0,Digestive diseases",
	}, "\n") + "\n")

	n, err := MergeReview(review, mappingPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(mappingPath)
	require.NoError(t, err)
	var rows []directRow
	require.NoError(t, csvutil.Unmarshal(data, &rows))
	require.Len(t, rows, 3)
	// existing row order preserved, J44 updated in place
	assert.Equal(t, "A00", rows[0].SourceCode)
	assert.Equal(t, "Cholera", rows[0].TargetCode)
	assert.Equal(t, "New cause", rows[1].TargetCode)
	assert.Equal(t, "K92", rows[2].SourceCode)
	assert.Equal(t, "Digestive diseases", rows[2].TargetCode)
}

func TestMergeReview_LaterDecisionWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	review := writeFile(t, dir, "review.csv", strings.Join([]string{
		"source_code,suggestion_rank,suggested_gbd_cause,confidence_score,human_mapping",
		"J44,1,Respiratory diseases,0.72,First pick",
		"J44,2,Cardiovascular diseases,0.41,Second pick",
	}, "\n") + "\n")
	mappingPath := filepath.Join(dir, "map.csv")

	n, err := MergeReview(review, mappingPath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(mappingPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Second pick")
	assert.NotContains(t, string(data), "First pick")
}

func TestMergeReview_NoDecisionsIsNoOp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	review := writeFile(t, dir, "review.csv", strings.Join([]string{
		"source_code,suggestion_rank,suggested_gbd_cause,confidence_score,human_mapping",
		"J44,1,Respiratory diseases,0.72,",
	}, "\n") + "\n")
	mappingPath := filepath.Join(dir, "map.csv")

	n, err := MergeReview(review, mappingPath)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = os.Stat(mappingPath)
	assert.True(t, os.IsNotExist(err))
}

func TestMergeReview_MissingReviewFile(t *testing.T) {
	t.Parallel()

	_, err := MergeReview(filepath.Join(t.TempDir(), "absent.csv"), "map.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read review file")
}
