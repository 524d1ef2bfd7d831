package votectl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

func TestReport_MapsKindToExitCode(t *testing.T) {
	require.Equal(t, ExitCode(2), report(apperrors.New(apperrors.KindForbidden, "op", "no")))
	require.Equal(t, ExitCode(3), report(apperrors.New(apperrors.KindDependencyFailure, "op", "down")))
	require.Equal(t, ExitCode(4), report(apperrors.New(apperrors.KindDatabase, "op", "db")))
}

func TestReport_NonAppErrorIsUsageExit(t *testing.T) {
	require.Equal(t, exitUsage, report(errors.New("plain failure")))
}

func TestMaskedActor_NeverLeaksFullIdentifier(t *testing.T) {
	flagActor = "0101907299"
	defer func() { flagActor = "" }()
	require.Equal(t, "010190-****", maskedActor())
}
