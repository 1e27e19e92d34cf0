package canon

import "slices"

// deuterocanon lists the seven books the Catholic canon adds, keyed by the
// Protestant book they follow.
var deuterocanon = []struct {
	after string
	books []Book
}{
	{after: "Nehemiah", books: []Book{
		{Name: "Tobit", OSIS: "Tob", Chapters: []int{22, 14, 17, 21, 22, 18, 16, 21, 6, 13, 18, 22, 18, 15}},
		{Name: "Judith", OSIS: "Jdt", Chapters: []int{16, 28, 10, 15, 24, 21, 32, 36, 14, 23, 23, 20, 20, 19, 14, 25}},
	}},
	{after: "Song Of Solomon", books: []Book{
		{Name: "Wisdom", OSIS: "Wis", Chapters: []int{16, 24, 19, 20, 23, 25, 30, 21, 18, 21, 26, 27, 19, 31, 19, 29, 21, 25, 22}},
		{Name: "Sirach", OSIS: "Sir", Chapters: []int{30, 18, 31, 31, 15, 37, 36, 19, 18, 31, 34, 18, 26, 27, 20, 30, 32, 33, 30, 31, 28, 27, 27, 34, 26, 29, 30, 26, 28, 25, 31, 24, 33, 31, 26, 31, 31, 34, 35, 30, 22, 25, 33, 23, 26, 20, 25, 25, 16, 29, 30}},
	}},
	{after: "Lamentations", books: []Book{
		{Name: "Baruch", OSIS: "Bar", Chapters: []int{22, 35, 38, 37, 9, 72}},
	}},
	{after: "Malachi", books: []Book{
		{Name: "1 Maccabees", OSIS: "1Macc", Chapters: []int{64, 70, 60, 61, 68, 63, 50, 32, 73, 89, 74, 53, 53, 49, 41, 24}},
		{Name: "2 Maccabees", OSIS: "2Macc", Chapters: []int{36, 32, 40, 50, 27, 31, 42, 36, 29, 38, 38, 45, 26, 46, 39}},
	}},
}

// catholicBooks returns the 73-book canon in Vulgate order.
func catholicBooks() []Book {
	books := protestantBooks()
	for _, d := range deuterocanon {
		i := slices.IndexFunc(books, func(b Book) bool { return b.Name == d.after })
		if i < 0 {
			// Caught by New: the resulting table would miss books.
			continue
		}
		books = slices.Insert(books, i+1, d.books...)
	}
	return books
}
