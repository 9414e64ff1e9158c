package persist

import "github.com/annel0/world-persist/internal/vec"

// Command одна команда персистенции или управляющая инструкция в очереди.
// Набор вариантов закрыт маркерным методом: worker делает исчерпывающий
// type switch, и новый вариант без ветки диспетчеризации не скомпилируется
// незамеченным.
type Command interface {
	isCommand()
	// Kind возвращает имя варианта (для логов и метрик)
	Kind() string
}

// WriteBlock запись блока; при применении износ блока сбрасывается в ноль
type WriteBlock struct {
	P, Q int
	Pos  vec.Vec3
	W    int
}

// WriteLight запись значения света
type WriteLight struct {
	P, Q int
	Pos  vec.Vec3
	W    int
}

// SetKey запись ключа чанка
type SetKey struct {
	P, Q int
	Key  int
}

// WriteDamage запись значения износа блока (0 — не поврежден)
type WriteDamage struct {
	P, Q   int
	Pos    vec.Vec3
	Damage int
}

// TrimZeroDamage удаление нулевых записей износа чанка
type TrimZeroDamage struct {
	P, Q int
}

// Commit граница транзакции: все команды с предыдущей границы
// фиксируются одной атомарной единицей
type Commit struct{}

// Shutdown терминальный sentinel: worker останавливается, когда доходит
// до него, применив всё, что стояло в очереди раньше
type Shutdown struct{}

func (WriteBlock) isCommand()     {}
func (WriteLight) isCommand()     {}
func (SetKey) isCommand()         {}
func (WriteDamage) isCommand()    {}
func (TrimZeroDamage) isCommand() {}
func (Commit) isCommand()         {}
func (Shutdown) isCommand()       {}

func (WriteBlock) Kind() string     { return "write_block" }
func (WriteLight) Kind() string     { return "write_light" }
func (SetKey) Kind() string         { return "set_key" }
func (WriteDamage) Kind() string    { return "write_damage" }
func (TrimZeroDamage) Kind() string { return "trim_zero_damage" }
func (Commit) Kind() string         { return "commit" }
func (Shutdown) Kind() string       { return "shutdown" }
