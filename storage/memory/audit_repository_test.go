package memory

import (
	"testing"

	"qcaudit/domain/repository"
	"qcaudit/storage/storagetest"
)

func TestAuditRepository_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) repository.IAuditRepository {
		return NewAuditRepository()
	})
}
