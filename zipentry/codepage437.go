package zipentry

// cp437High maps code page 437 bytes 0x80-0xFF to their Unicode
// runes. Bytes below 0x80 are identical to ASCII. Used to decode
// legacy ZIP filenames whose general-purpose UTF-8 bit is unset.
var cp437High = [128]rune{
	'Ç', 'ü', 'é', 'â', 'ä', 'à', 'å', 'ç', 'ê', 'ë', 'è', 'ï', 'î', 'ì', 'Ä', 'Å',
	'É', 'æ', 'Æ', 'ô', 'ö', 'ò', 'û', 'ù', 'ÿ', 'Ö', 'Ü', '¢', '£', '¥', '₧', 'ƒ',
	'á', 'í', 'ó', 'ú', 'ñ', 'Ñ', 'ª', 'º', '¿', '⌐', '¬', '½', '¼', '¡', '«', '»',
	'░', '▒', '▓', '│', '┤', '╡', '╢', '╖', '╕', '╣', '║', '╗', '╝', '╜', '╛', '┐',
	'└', '┴', '┬', '├', '─', '┼', '╞', '╟', '╚', '╔', '╩', '╦', '╠', '═', '╬', '╧',
	'╨', '╤', '╥', '╙', '╘', '╒', '╓', '╫', '╪', '┘', '┌', '█', '▄', '▌', '▐', '▀',
	'α', 'ß', 'Γ', 'π', 'Σ', 'σ', 'µ', 'τ', 'Φ', 'Θ', 'Ω', 'δ', '∞', 'φ', 'ε', '∩',
	'≡', '±', '≥', '≤', '⌠', '⌡', '÷', '≈', '°', '∙', '·', '√', 'ⁿ', '²', '■', ' ',
}

// DecodeCodePage437 decodes raw ZIP filename bytes that lack the
// UTF-8 general-purpose flag, per the legacy MS-DOS code page most
// ZIP tools fall back to.
func DecodeCodePage437(raw []byte) string {
	runes := make([]rune, len(raw))
	for i, b := range raw {
		if b < 0x80 {
			runes[i] = rune(b)
		} else {
			runes[i] = cp437High[b-0x80]
		}
	}

	return string(runes)
}
