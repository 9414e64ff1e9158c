package persist

import (
	"testing"

	"github.com/annel0/world-persist/internal/vec"
)

// TestRingSizeAlgebra проверяет согласованность Size/Empty/Full
func TestRingSizeAlgebra(t *testing.T) {
	r := NewRing(4)

	if !r.Empty() {
		t.Error("Новый буфер должен быть пуст")
	}
	if r.Full() {
		t.Error("Новый буфер не должен быть полон")
	}
	if r.Size() != 0 {
		t.Errorf("Ожидался размер 0, получен %d", r.Size())
	}

	pushes := 0
	pops := 0
	for i := 0; i < 3; i++ {
		r.Push(Commit{})
		pushes++
	}
	for i := 0; i < 2; i++ {
		if _, ok := r.Pop(); !ok {
			t.Fatal("Pop вернул пусто при непустом буфере")
		}
		pops++
	}

	if r.Size() != pushes-pops {
		t.Errorf("Ожидался размер %d, получен %d", pushes-pops, r.Size())
	}
	if r.Empty() != (r.Size() == 0) {
		t.Error("Empty не согласован с Size")
	}
	if r.Full() != (r.Size() == r.Capacity()) {
		t.Error("Full не согласован с Size")
	}
}

// TestRingPopEmpty проверяет извлечение из пустого буфера
func TestRingPopEmpty(t *testing.T) {
	r := NewRing(2)
	if cmd, ok := r.Pop(); ok || cmd != nil {
		t.Errorf("Pop из пустого буфера должен вернуть (nil, false), получено (%v, %v)", cmd, ok)
	}
}

// TestRingMinimumCapacity проверяет, что ёмкость не бывает меньше 1
func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing(0)
	if r.Capacity() < 1 {
		t.Errorf("Ожидалась ёмкость >= 1, получена %d", r.Capacity())
	}
	r.Push(Commit{})
	if r.Size() != 1 {
		t.Errorf("Ожидался размер 1, получен %d", r.Size())
	}
}

// TestRingScenarioBlockThenCommit: запись блока, затем граница коммита —
// извлекаются в том же порядке, буфер после пуст
func TestRingScenarioBlockThenCommit(t *testing.T) {
	r := NewRing(4)
	r.Push(WriteBlock{P: 1, Q: 1, Pos: vec.Vec3{X: 0, Y: 0, Z: 0}, W: 5})
	r.Push(Commit{})

	first, ok := r.Pop()
	if !ok {
		t.Fatal("Ожидалась команда, буфер пуст")
	}
	wb, ok := first.(WriteBlock)
	if !ok {
		t.Fatalf("Первой должна быть WriteBlock, получена %T", first)
	}
	if wb.P != 1 || wb.Q != 1 || wb.W != 5 {
		t.Errorf("Неверная команда: %+v", wb)
	}

	second, ok := r.Pop()
	if !ok {
		t.Fatal("Ожидалась вторая команда, буфер пуст")
	}
	if _, ok := second.(Commit); !ok {
		t.Fatalf("Второй должна быть Commit, получена %T", second)
	}

	if !r.Empty() {
		t.Error("Буфер должен быть пуст после извлечения обеих команд")
	}
}

// TestRingGrowthPreservesOrder: переполнение с ростом не теряет и не
// переставляет элементы
func TestRingGrowthPreservesOrder(t *testing.T) {
	r := NewRing(2)
	a := SetKey{P: 1, Q: 1, Key: 1}
	b := SetKey{P: 2, Q: 2, Key: 2}
	c := SetKey{P: 3, Q: 3, Key: 3}

	r.Push(a)
	r.Push(b)
	if !r.Full() {
		t.Fatal("Буфер ёмкости 2 должен быть полон после двух Push")
	}

	r.Push(c) // рост
	if r.Capacity() < 3 {
		t.Errorf("После роста ожидалась ёмкость >= 3, получена %d", r.Capacity())
	}
	if r.Size() != 3 {
		t.Errorf("После роста ожидался размер 3, получен %d", r.Size())
	}

	for i, want := range []SetKey{a, b, c} {
		cmd, ok := r.Pop()
		if !ok {
			t.Fatalf("Буфер пуст на позиции %d", i)
		}
		got, ok := cmd.(SetKey)
		if !ok || got != want {
			t.Errorf("Позиция %d: ожидалась %+v, получена %+v", i, want, cmd)
		}
	}
	if !r.Empty() {
		t.Error("Буфер должен быть пуст")
	}
}

// TestRingGrowthAfterWraparound: рост из состояния, когда логическое начало
// не на нулевом индексе
func TestRingGrowthAfterWraparound(t *testing.T) {
	r := NewRing(4)

	// Сдвигаем start: кладем и забираем
	for i := 0; i < 3; i++ {
		r.Push(SetKey{Key: i})
		r.Pop()
	}

	// Заполняем до отказа с переносом через конец массива, затем растем
	var want []int
	for i := 0; i < 10; i++ {
		r.Push(SetKey{Key: 100 + i})
		want = append(want, 100+i)
	}

	for i, key := range want {
		cmd, ok := r.Pop()
		if !ok {
			t.Fatalf("Буфер пуст на позиции %d", i)
		}
		if got := cmd.(SetKey).Key; got != key {
			t.Errorf("Позиция %d: ожидался ключ %d, получен %d", i, key, got)
		}
	}
}

// TestRingManyGrows: многократный рост сохраняет порядок всех элементов
func TestRingManyGrows(t *testing.T) {
	r := NewRing(1)
	const n = 1000

	for i := 0; i < n; i++ {
		r.Push(SetKey{Key: i})
	}
	if r.Size() != n {
		t.Fatalf("Ожидался размер %d, получен %d", n, r.Size())
	}

	for i := 0; i < n; i++ {
		cmd, ok := r.Pop()
		if !ok {
			t.Fatalf("Буфер пуст на позиции %d", i)
		}
		if got := cmd.(SetKey).Key; got != i {
			t.Fatalf("Позиция %d: ожидался ключ %d, получен %d", i, i, got)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Error("После извлечения всех элементов буфер должен быть пуст")
	}
}
