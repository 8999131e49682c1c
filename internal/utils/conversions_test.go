package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-erp-portal/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"ADMIN", "student"}, utils.ToStringSlice([]any{"ADMIN", 7, nil, "student"}))
	require.Empty(t, utils.ToStringSlice(nil))
}
