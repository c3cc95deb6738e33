package upload

import (
	"bytes"
	"mime"
	"strings"
)

// Допустимые типы: голосовые и картинки. Остальное отклоняется.
var extByMIME = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/mp4":  ".m4a",
	"audio/wav":  ".wav",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func normalizeMIME(hint string) string {
	if hint == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(hint)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(hint))
	}
	return mt
}

// ExtFor returns the file extension for an allowed MIME type, or "" if the type is rejected.
func ExtFor(hint string) string {
	return extByMIME[normalizeMIME(hint)]
}

// ContentTypeByExt is the reverse lookup used when serving a stored blob.
func ContentTypeByExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	for mt, e := range extByMIME {
		if e == ext {
			return mt
		}
	}
	return "application/octet-stream"
}

// matchMagic проверяет сигнатуру картинок. Аудио не проверяем: MP3 без ID3 не имеет надёжной сигнатуры.
func matchMagic(ext string, head []byte) bool {
	switch ext {
	case ".jpg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case ".png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case ".gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case ".webp":
		return len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP"))
	}
	return true
}
