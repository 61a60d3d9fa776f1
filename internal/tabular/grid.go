package tabular

// SampleRows — количество строк данных под заголовком, по которым
// определяется тип столбца.
const SampleRows = 5

// Grid — прямоугольная выборка ячеек первого листа.
// Строки могут быть разной длины, отсутствующие ячейки пусты.
type Grid struct {
	Rows [][]Cell
}

// Cell возвращает ячейку по индексам строки и столбца (с нуля).
func (g *Grid) Cell(row, col int) Cell {
	if row < 0 || row >= len(g.Rows) || col < 0 || col >= len(g.Rows[row]) {
		return Empty()
	}
	return g.Rows[row][col]
}

// Range — занятый диапазон листа (границы включительно).
type Range struct {
	FirstRow, LastRow int
	FirstCol, LastCol int
}

// Bounds вычисляет занятый диапазон. ok == false для пустого листа.
func (g *Grid) Bounds() (rng Range, ok bool) {
	rng = Range{FirstRow: -1, FirstCol: -1, LastRow: -1, LastCol: -1}
	for r, row := range g.Rows {
		for c, cell := range row {
			if cell.IsEmpty() {
				continue
			}
			if rng.FirstRow < 0 {
				rng.FirstRow = r
			}
			rng.LastRow = r
			if rng.FirstCol < 0 || c < rng.FirstCol {
				rng.FirstCol = c
			}
			if c > rng.LastCol {
				rng.LastCol = c
			}
		}
	}
	return rng, rng.FirstRow >= 0
}

// collector накапливает строки при чтении файла и сообщает, когда
// прочитан заголовок и SampleRows строк под ним. Остаток файла не нужен.
type collector struct {
	rows     [][]Cell
	headerAt int
}

func newCollector() *collector {
	return &collector{headerAt: -1}
}

// add добавляет строку. Возвращает false, когда выборка собрана.
func (c *collector) add(row []Cell) bool {
	c.rows = append(c.rows, row)
	if c.headerAt < 0 && !rowEmpty(row) {
		c.headerAt = len(c.rows) - 1
	}
	return c.headerAt < 0 || len(c.rows)-1-c.headerAt < SampleRows
}

func (c *collector) grid() *Grid {
	return &Grid{Rows: c.rows}
}

func rowEmpty(row []Cell) bool {
	for _, cell := range row {
		if !cell.IsEmpty() {
			return false
		}
	}
	return true
}
