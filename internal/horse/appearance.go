package horse

import (
	"errors"
	"fmt"
)

// ErrUnknownAppearance возвращается при разборе неизвестного имени окраса или узора
var ErrUnknownAppearance = errors.New("unknown appearance tag")

// Color - окрас лошади. Набор значений закрыт.
type Color uint8

const (
	ColorWhite Color = iota
	ColorCreamy
	ColorChestnut
	ColorBrown
	ColorBlack
	ColorGray
	ColorDarkBrown
)

var colorNames = [...]string{
	ColorWhite:     "WHITE",
	ColorCreamy:    "CREAMY",
	ColorChestnut:  "CHESTNUT",
	ColorBrown:     "BROWN",
	ColorBlack:     "BLACK",
	ColorGray:      "GRAY",
	ColorDarkBrown: "DARK_BROWN",
}

// Colors возвращает все окрасы в порядке объявления
func Colors() []Color {
	out := make([]Color, len(colorNames))
	for i := range colorNames {
		out[i] = Color(i)
	}
	return out
}

// Valid сообщает, входит ли значение в закрытый набор
func (c Color) Valid() bool {
	return int(c) < len(colorNames)
}

func (c Color) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Color(%d)", uint8(c))
	}
	return colorNames[c]
}

// ParseColor разбирает имя окраса. Подстановки по умолчанию нет.
func ParseColor(name string) (Color, error) {
	for i, n := range colorNames {
		if n == name {
			return Color(i), nil
		}
	}
	return 0, fmt.Errorf("color %q: %w", name, ErrUnknownAppearance)
}

// Style - узор отметин лошади. Набор значений закрыт.
type Style uint8

const (
	StyleNone Style = iota
	StyleWhite
	StyleWhitefield
	StyleWhiteDots
	StyleBlackDots
)

var styleNames = [...]string{
	StyleNone:       "NONE",
	StyleWhite:      "WHITE",
	StyleWhitefield: "WHITEFIELD",
	StyleWhiteDots:  "WHITE_DOTS",
	StyleBlackDots:  "BLACK_DOTS",
}

// Styles возвращает все узоры в порядке объявления
func Styles() []Style {
	out := make([]Style, len(styleNames))
	for i := range styleNames {
		out[i] = Style(i)
	}
	return out
}

// Valid сообщает, входит ли значение в закрытый набор
func (s Style) Valid() bool {
	return int(s) < len(styleNames)
}

func (s Style) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Style(%d)", uint8(s))
	}
	return styleNames[s]
}

// ParseStyle разбирает имя узора. Подстановки по умолчанию нет.
func ParseStyle(name string) (Style, error) {
	for i, n := range styleNames {
		if n == name {
			return Style(i), nil
		}
	}
	return 0, fmt.Errorf("style %q: %w", name, ErrUnknownAppearance)
}
