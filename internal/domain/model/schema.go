package model

// ColumnType — тип данных столбца, определённый по выборке строк.
type ColumnType string

const (
	ColumnString ColumnType = "string"
	ColumnNumber ColumnType = "number"
	ColumnDate   ColumnType = "date"
)

// Column — описание одного столбца таблицы.
type Column struct {
	// ID — стабильный идентификатор столбца вида col_<индекс>
	ID string `json:"id"`
	// Label — значение ячейки заголовка
	Label string `json:"label"`
	// InferredType — определённый тип данных
	InferredType ColumnType `json:"inferredType"`
}

// Schema — результат определения структуры файла.
type Schema struct {
	Columns []Column `json:"columns"`
}
