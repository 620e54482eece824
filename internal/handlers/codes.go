package handlers

import (
	"crypto/rand"
	"errors"

	"github.com/sunilseervi6/SmartQ/internal/storage"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateUniqueCode подбирает свободный публичный код вида PREFIX-XXXXXX
// для указанной модели (колонка column).
func generateUniqueCode(prefix, column string, model interface{}) (string, error) {
	for i := 0; i < 10; i++ {
		b := make([]byte, 6)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		for j := range b {
			b[j] = codeAlphabet[int(b[j])%len(codeAlphabet)]
		}
		code := prefix + "-" + string(b)

		var count int64
		if err := storage.DB.Model(model).Where(column+" = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("не удалось сгенерировать уникальный код")
}
