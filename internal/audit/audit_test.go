package audit_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
)

func TestMaskKennitala(t *testing.T) {
	require.Equal(t, "010190-****", audit.MaskKennitala("0101901234"))
	require.Equal(t, "******-****", audit.MaskKennitala("12345"))
	require.Equal(t, "******-****", audit.MaskKennitala(""))
}

func TestMaskHash(t *testing.T) {
	require.Equal(t, "ab12…cd34", audit.MaskHash("ab12ef00000000000000000000000000000000000000000000000000cd34"))
	require.Equal(t, "short", audit.MaskHash("short"))
}
