package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhub/checklist-api/internal/model"
)

func TestFindDuplicates(t *testing.T) {
	t.Run("healthy set has no groups", func(t *testing.T) {
		tasks := []model.ProjectTask{
			templateTask("a1a1a1a1-0000-0000-0000-000000000001", projectID, "risk-register", "planning"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000002", projectID, "scope-baseline", "planning"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000003", projectID, "risk-register", "closure"),
		}

		assert.Empty(t, FindDuplicates(tasks))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, FindDuplicates(nil))
	})

	t.Run("same source in different stages is not a duplicate", func(t *testing.T) {
		tasks := []model.ProjectTask{
			templateTask("a1a1a1a1-0000-0000-0000-000000000001", projectID, "risk-register", "planning"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000002", projectID, "risk-register", "execution"),
		}

		assert.Empty(t, FindDuplicates(tasks))
	})

	t.Run("custom tasks never group", func(t *testing.T) {
		src := "risk-register"
		a := customTask("a1a1a1a1-0000-0000-0000-000000000001", projectID)
		b := customTask("a1a1a1a1-0000-0000-0000-000000000002", projectID)
		a.SourceID = &src
		b.SourceID = &src
		a.Stage = "planning"
		b.Stage = "planning"

		assert.Empty(t, FindDuplicates([]model.ProjectTask{a, b}))
	})

	t.Run("template rows without source are skipped", func(t *testing.T) {
		a := templateTask("a1a1a1a1-0000-0000-0000-000000000001", projectID, "x", "planning")
		b := templateTask("a1a1a1a1-0000-0000-0000-000000000002", projectID, "x", "planning")
		a.SourceID = nil
		b.SourceID = nil

		assert.Empty(t, FindDuplicates([]model.ProjectTask{a, b}))
	})

	t.Run("groups are sorted by source then stage", func(t *testing.T) {
		tasks := []model.ProjectTask{
			templateTask("a1a1a1a1-0000-0000-0000-000000000001", projectID, "scope-baseline", "planning"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000002", projectID, "scope-baseline", "planning"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000003", projectID, "risk-register", "planning"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000004", projectID, "risk-register", "planning"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000005", projectID, "risk-register", "discovery"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000006", projectID, "risk-register", "discovery"),
			templateTask("a1a1a1a1-0000-0000-0000-000000000007", projectID, "risk-register", "discovery"),
		}

		groups := FindDuplicates(tasks)

		require.Len(t, groups, 3)
		assert.Equal(t, "risk-register", groups[0].SourceID)
		assert.Equal(t, "discovery", groups[0].Stage)
		assert.Len(t, groups[0].Tasks, 3)
		assert.Equal(t, "risk-register", groups[1].SourceID)
		assert.Equal(t, "planning", groups[1].Stage)
		assert.Equal(t, "scope-baseline", groups[2].SourceID)
		assert.Equal(t, "planning", groups[2].Stage)
	})
}
