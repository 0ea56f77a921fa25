// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package bpfmap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	uerrors "grimm.is/uidpolicy/internal/errors"
)

type record struct {
	IIF  uint32
	Rule uint32
}

func TestMemory_Read(t *testing.T) {
	tbl := NewMemory[uint32, record]("uid_owner").Set(10001, record{Rule: 4})

	v, err := tbl.Read(10001)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), v.Rule)
	assert.Equal(t, int64(1), tbl.Reads())

	_, err = tbl.Read(10002)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotExist))
	assert.Equal(t, uerrors.KindReadFailed, uerrors.GetKind(err))
	errno, ok := uerrors.Errno(err)
	assert.True(t, ok)
	assert.Equal(t, unix.ENOENT, errno)
}

func TestReadOrZero(t *testing.T) {
	tbl := NewMemory[uint32, record]("uid_owner").Set(1, record{Rule: 2})

	v, err := ReadOrZero[uint32, record](tbl, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v.Rule)

	v, err = ReadOrZero[uint32, record](tbl, 99)
	require.NoError(t, err, "missing entry is a zero value, not an error")
	assert.Equal(t, record{}, v)

	tbl.FailReads(unix.EPERM)
	_, err = ReadOrZero[uint32, record](tbl, 1)
	require.Error(t, err)
	errno, ok := uerrors.Errno(err)
	assert.True(t, ok)
	assert.Equal(t, unix.EPERM, errno)
}

func TestMemory_Validity(t *testing.T) {
	tbl := NewMemory[uint32, uint32]("configuration").Set(0, 1)
	assert.True(t, IsValid[uint32, uint32](tbl))

	require.NoError(t, tbl.Close())
	assert.False(t, tbl.Valid())
	assert.False(t, IsValid[uint32, uint32](tbl))

	_, err := tbl.Read(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotValid))
	errno, _ := uerrors.Errno(err)
	assert.Equal(t, unix.EBADF, errno)

	var nilTable Table[uint32, uint32]
	assert.False(t, IsValid(nilTable))
}

func TestMemory_Delete(t *testing.T) {
	tbl := NewMemory[uint32, uint8]("data_saver").Set(0, 1)
	tbl.Delete(0)
	v, err := ReadOrZero[uint32, uint8](tbl, 0)
	require.NoError(t, err)
	assert.Zero(t, v)
}
