// Package htmlindex renders a directory listing as a self-contained
// HTML page for browser clients (spec §4.E). Render is a pure
// function: given a request path and a listing, it always produces
// the same page, with no I/O of its own.
package htmlindex

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/qkdrive/quarkdrive-webdav/internal/drive"
)

const chinaOffsetSeconds = 8 * 60 * 60

// FormatSize renders size using binary (1024-based) units with one
// decimal digit, except for the plain-byte case (spec §8 boundaries:
// FormatSize(1023) == "1023 B", FormatSize(1024) == "1.0 KB").
func FormatSize(size uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
		tb = gb * 1024
	)

	switch {
	case size >= tb:
		return fmt.Sprintf("%.1f TB", float64(size)/float64(tb))
	case size >= gb:
		return fmt.Sprintf("%.1f GB", float64(size)/float64(gb))
	case size >= mb:
		return fmt.Sprintf("%.1f MB", float64(size)/float64(mb))
	case size >= kb:
		return fmt.Sprintf("%.1f KB", float64(size)/float64(kb))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

// FormatTimestamp converts an epoch-milliseconds timestamp to UTC+8,
// "YYYY-MM-DD HH:MM" (spec §4.E, §8: FormatTimestamp(1704067200000) ==
// "2024-01-01 08:00").
func FormatTimestamp(epochMS uint64) string {
	secs := int64(epochMS / 1000)
	china := time.FixedZone("UTC+8", chinaOffsetSeconds)
	return time.Unix(secs, 0).In(china).Format("2006-01-02 15:04")
}

// HTMLEscape escapes the five characters meaningful to HTML parsing
// (spec §8 invariant: image contains none of `< > " '` except as
// entities).
func HTMLEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
	)
	return r.Replace(s)
}

// PercentEncodePath percent-encodes a single path segment for use in
// an href: every byte that is not an ASCII letter or digit becomes %XX
// (spec §4.E).
func PercentEncodePath(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

var iconByExt = map[string]string{
	"jpg": "🖼️", "jpeg": "🖼️", "png": "🖼️", "gif": "🖼️", "bmp": "🖼️", "webp": "🖼️", "svg": "🖼️", "ico": "🖼️",
	"mp4": "🎬", "avi": "🎬", "mkv": "🎬", "mov": "🎬", "wmv": "🎬", "flv": "🎬", "webm": "🎬", "m4v": "🎬", "ts": "🎬",
	"mp3": "🎵", "wav": "🎵", "flac": "🎵", "aac": "🎵", "ogg": "🎵", "wma": "🎵", "m4a": "🎵",
	"pdf": "📕",
	"doc": "📝", "docx": "📝",
	"xls": "📊", "xlsx": "📊",
	"ppt": "📎", "pptx": "📎",
	"zip": "📦", "rar": "📦", "7z": "📦", "tar": "📦", "gz": "📦", "bz2": "📦", "xz": "📦",
	"txt": "📄", "md": "📄", "log": "📄", "csv": "📄",
	"exe": "⚙️", "msi": "⚙️", "dmg": "⚙️", "app": "⚙️", "deb": "⚙️", "rpm": "⚙️",
	"html": "💻", "css": "💻", "js": "💻", "json": "💻", "xml": "💻", "yaml": "💻", "yml": "💻", "toml": "💻",
	"go": "💻", "py": "💻", "java": "💻", "c": "💻", "cpp": "💻", "rb": "💻", "php": "💻", "sh": "💻", "rs": "💻",
}

// FileIcon maps a file name's extension to a glyph (spec §4.E
// "per-extension icon glyph via a fixed mapping").
func FileIcon(name string) string {
	ext := ""
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		ext = strings.ToLower(name[idx+1:])
	}
	if icon, ok := iconByExt[ext]; ok {
		return icon
	}
	return "📄"
}

// Render produces the HTML directory index page for requestPath given
// its already-resolved listing (spec §4.E).
func Render(requestPath string, files []drive.FileRecord) string {
	displayPath := requestPath
	if displayPath == "" {
		displayPath = "/"
	}

	normalizedPath := requestPath
	if !strings.HasSuffix(normalizedPath, "/") {
		normalizedPath += "/"
	}

	var dirs, regular []drive.FileRecord
	for _, f := range files {
		if f.IsDir {
			dirs = append(dirs, f)
		} else if f.IsFile {
			regular = append(regular, f)
		}
	}
	sortByNameCaseInsensitive(dirs)
	sortByNameCaseInsensitive(regular)

	var rows strings.Builder
	if displayPath != "/" {
		rows.WriteString(`<tr class="parent"><td class="icon">📁</td><td class="name"><a href="../">..</a></td><td class="size">-</td><td class="date">-</td></tr>`)
	}

	for _, d := range dirs {
		name := HTMLEscape(d.Name)
		href := normalizedPath + PercentEncodePath(d.Name) + "/"
		date := FormatTimestamp(d.UpdatedMS)
		fmt.Fprintf(&rows, `<tr class="dir"><td class="icon">📁</td><td class="name"><a href="%s">%s</a></td><td class="size">-</td><td class="date">%s</td></tr>`,
			HTMLEscape(href), name, date)
	}

	for _, f := range regular {
		name := HTMLEscape(f.Name)
		href := normalizedPath + PercentEncodePath(f.Name)
		size := FormatSize(f.Size)
		date := FormatTimestamp(f.UpdatedMS)
		icon := FileIcon(f.Name)
		fmt.Fprintf(&rows, `<tr class="file"><td class="icon">%s</td><td class="name"><a href="%s">%s</a></td><td class="size">%s</td><td class="date">%s</td></tr>`,
			icon, HTMLEscape(href), name, size, date)
	}

	breadcrumbs := renderBreadcrumbs(displayPath)
	total := len(dirs) + len(regular)

	return fmt.Sprintf(htmlTemplate, html.EscapeString(displayPath), breadcrumbs, rows.String(), total)
}

func renderBreadcrumbs(displayPath string) string {
	var b strings.Builder
	b.WriteString(`<a href="/">root</a>`)
	if displayPath == "/" {
		return b.String()
	}

	parts := strings.Split(strings.Trim(displayPath, "/"), "/")
	href := ""
	for i, part := range parts {
		href += "/" + PercentEncodePath(part)
		if i == len(parts)-1 {
			fmt.Fprintf(&b, ` / <span class="current">%s</span>`, HTMLEscape(part))
		} else {
			fmt.Fprintf(&b, ` / <a href="%s">%s</a>`, HTMLEscape(href+"/"), HTMLEscape(part))
		}
	}
	return b.String()
}

func sortByNameCaseInsensitive(files []drive.FileRecord) {
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>quarkdrive-webdav - %s</title>
<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif; background: #f5f5f5; color: #333; line-height: 1.6; }
.container { max-width: 960px; margin: 0 auto; padding: 20px; }
.header { background: #fff; border-radius: 8px; padding: 16px 24px; margin-bottom: 16px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
.header h1 { font-size: 18px; font-weight: 600; color: #1a1a1a; margin-bottom: 8px; }
.breadcrumb { font-size: 14px; color: #666; }
.breadcrumb a { color: #2563eb; text-decoration: none; }
.breadcrumb .current { color: #333; font-weight: 500; }
.content { background: #fff; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); overflow: hidden; }
table { width: 100%%; border-collapse: collapse; }
thead { background: #fafafa; }
th { text-align: left; padding: 12px 16px; font-size: 13px; font-weight: 600; color: #666; border-bottom: 1px solid #eee; }
td { padding: 10px 16px; border-bottom: 1px solid #f0f0f0; font-size: 14px; }
.icon { width: 32px; text-align: center; }
.name { word-break: break-all; }
.name a { color: #1a1a1a; text-decoration: none; }
.size { width: 100px; text-align: right; color: #888; white-space: nowrap; }
.date { width: 160px; color: #888; white-space: nowrap; }
.footer { text-align: center; padding: 16px; font-size: 12px; color: #aaa; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>quarkdrive-webdav</h1>
    <div class="breadcrumb">%s</div>
  </div>
  <div class="content">
    <table>
      <thead><tr><th class="icon"></th><th>Name</th><th class="size">Size</th><th class="date">Modified</th></tr></thead>
      <tbody>%s</tbody>
    </table>
  </div>
  <div class="footer">%d items</div>
</div>
</body>
</html>`
